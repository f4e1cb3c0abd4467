package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nestmate/roommates/internal/messaging"
	"github.com/nestmate/roommates/internal/protocol"
)

// Requester is the subset of the NATS client that Client needs.
type Requester interface {
	Publish(subject string, data []byte) error
	Request(subject string, data []byte, timeout time.Duration) ([]byte, error)
}

// Client talks to matcher services over NATS request/reply. Errors the
// matcher reports come back as *protocol.ErrorReply.
type Client struct {
	bus     Requester
	timeout time.Duration
}

// NewClient creates a matcher client. timeout bounds each request when the
// context has no earlier deadline.
func NewClient(bus Requester, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultServiceConfig().RequestTimeout
	}
	return &Client{bus: bus, timeout: timeout}
}

// Score asks for the compatibility between a and b.
func (c *Client) Score(ctx context.Context, a, b string) (protocol.ScoreReply, error) {
	var reply protocol.ScoreReply
	err := c.call(ctx, messaging.SubjectScore, protocol.TypeScore,
		protocol.ScoreRequest{A: a, B: b}, protocol.TypeScoreResult, &reply)
	return reply, err
}

// Groups asks for the groups owner can invite.
func (c *Client) Groups(ctx context.Context, owner string) (protocol.GroupsReply, error) {
	var reply protocol.GroupsReply
	err := c.call(ctx, messaging.SubjectGroups, protocol.TypeGroups,
		protocol.GroupsRequest{Owner: owner}, protocol.TypeGroupsResult, &reply)
	return reply, err
}

// Feed asks for viewer's ranked feed.
func (c *Client) Feed(ctx context.Context, viewer string, limit int) (protocol.FeedReply, error) {
	var reply protocol.FeedReply
	err := c.call(ctx, messaging.SubjectFeed, protocol.TypeFeed,
		protocol.FeedRequest{Viewer: viewer, Limit: limit}, protocol.TypeFeedResult, &reply)
	return reply, err
}

// Invite marks a group as invited by owner.
func (c *Client) Invite(ctx context.Context, owner, groupKey string) (protocol.InviteReply, error) {
	var reply protocol.InviteReply
	err := c.call(ctx, messaging.SubjectInvite, protocol.TypeInvite,
		protocol.InviteRequest{Owner: owner, GroupKey: groupKey}, protocol.TypeInviteResult, &reply)
	return reply, err
}

// Uninvite withdraws owner's invitation of a group.
func (c *Client) Uninvite(ctx context.Context, owner, groupKey string) (protocol.UninviteReply, error) {
	var reply protocol.UninviteReply
	err := c.call(ctx, messaging.SubjectUninvite, protocol.TypeUninvite,
		protocol.UninviteRequest{Owner: owner, GroupKey: groupKey}, protocol.TypeUninviteResult, &reply)
	return reply, err
}

// ExpressInterest publishes an interest event and returns its request id.
// The matcher records it asynchronously.
func (c *Client) ExpressInterest(_ context.Context, from, to string) (string, error) {
	id := protocol.NewRequestID()
	data, err := protocol.NewMessage(protocol.TypeInterest, id, protocol.InterestMsg{From: from, To: to})
	if err != nil {
		return "", err
	}
	if err := c.bus.Publish(messaging.SubjectInterest, data); err != nil {
		return "", fmt.Errorf("matchmaker: publish interest: %w", err)
	}
	return id, nil
}

func (c *Client) call(ctx context.Context, subject, msgType string, req any, replyType string, out any) error {
	data, err := protocol.NewMessage(msgType, protocol.NewRequestID(), req)
	if err != nil {
		return err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := c.bus.Request(subject, data, timeout)
	if err != nil {
		if errors.Is(err, messaging.ErrNoResponders) {
			return err
		}
		return fmt.Errorf("matchmaker: %s: %w", subject, err)
	}
	return protocol.DecodeReply(raw, replyType, out)
}
