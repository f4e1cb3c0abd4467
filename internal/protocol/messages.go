// Package protocol defines the messages exchanged between the API server
// and the matcher over NATS. All messages are serialized as JSON and share
// an envelope carrying a type discriminator and a request id used to
// correlate replies in logs.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nestmate/roommates/internal/compat"
)

// Request message types.
const (
	TypeScore    = "score"
	TypeGroups   = "groups"
	TypeFeed     = "feed"
	TypeInterest = "interest"
	TypeInvite   = "invite"
	TypeUninvite = "uninvite"
)

// Reply message types.
const (
	TypeScoreResult    = "score_result"
	TypeGroupsResult   = "groups_result"
	TypeFeedResult     = "feed_result"
	TypeInviteResult   = "invite_result"
	TypeUninviteResult = "uninvite_result"
	TypeError          = "error"
)

// Error codes carried by ErrorReply.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// ErrMissingType is returned when a message has no "type" field.
var ErrMissingType = errors.New("protocol: missing or empty \"type\" field")

// Envelope holds the message type, the request id and the raw JSON payload
// for deferred parsing into a concrete struct.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the envelope
// fields so the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return ErrMissingType
	}
	e.Type = partial.Type
	e.RequestID = partial.RequestID
	return nil
}

// NewRequestID returns a fresh id for correlating a request with its reply.
func NewRequestID() string {
	return uuid.New().String()
}

// ScoreRequest asks for the compatibility between two roster profiles.
type ScoreRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	A         string `json:"a"`
	B         string `json:"b"`
}

// GroupsRequest asks for the roommate groups an owner can invite.
type GroupsRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Owner     string `json:"owner"`
}

// FeedRequest asks for a viewer's ranked recommendation feed.
type FeedRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Viewer    string `json:"viewer"`
	Limit     int    `json:"limit"`
}

// InterestMsg records that From showed interest in To. It is published as
// an event and gets no reply.
type InterestMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// InviteRequest marks a discovered group as invited by Owner.
type InviteRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Owner     string `json:"owner"`
	GroupKey  string `json:"group_key"`
}

// UninviteRequest withdraws Owner's invitation of a group.
type UninviteRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Owner     string `json:"owner"`
	GroupKey  string `json:"group_key"`
}

// Quota carries the caller's remaining query allowance in the current
// rate-limit window. It is absent when the matcher runs without limits.
type Quota struct {
	RateRemaining *int `json:"rate_remaining,omitempty"`
}

// SetRateRemaining records the remaining allowance.
func (q *Quota) SetRateRemaining(n int) {
	q.RateRemaining = &n
}

// ScoreReply carries a compatibility result.
type ScoreReply struct {
	Type       string           `json:"type"`
	RequestID  string           `json:"request_id"`
	A          string           `json:"a"`
	B          string           `json:"b"`
	Percentage int              `json:"percentage"`
	Breakdown  compat.Breakdown `json:"breakdown"`
	Quota
}

// GroupView is one discovered group as shown to an owner.
type GroupView struct {
	Key           string   `json:"key"`
	Members       []string `json:"members"`
	Compatibility int      `json:"compatibility"`
	Invited       bool     `json:"invited"`
}

// GroupsReply lists groups in discovery order: triads first, then pairs.
type GroupsReply struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Owner     string      `json:"owner"`
	Groups    []GroupView `json:"groups"`
	Quota
}

// FeedEntry is one ranked profile in a viewer's feed.
type FeedEntry struct {
	ID         string           `json:"id"`
	Role       compat.Role      `json:"role"`
	Percentage int              `json:"percentage"`
	Breakdown  compat.Breakdown `json:"breakdown"`
	Liked      bool             `json:"liked"` // the viewer already showed interest
}

// FeedReply lists feed entries, best match first.
type FeedReply struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Viewer    string      `json:"viewer"`
	Entries   []FeedEntry `json:"entries"`
	Quota
}

// InviteReply confirms an invitation.
type InviteReply struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id"`
	Owner     string   `json:"owner"`
	GroupKey  string   `json:"group_key"`
	InviteID  string   `json:"invite_id"`
	Members   []string `json:"members"`
	Quota
}

// UninviteReply reports whether a live invitation was withdrawn.
type UninviteReply struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Owner     string `json:"owner"`
	GroupKey  string `json:"group_key"`
	Withdrawn bool   `json:"withdrawn"`
	Quota
}

// ErrorReply is sent instead of a result when a request fails.
type ErrorReply struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Error implements the error interface so callers can return an ErrorReply
// they received as-is.
func (e *ErrorReply) Error() string {
	return e.Code + ": " + e.Message
}

// ParseRequest parses raw NATS bytes into a typed request. It returns the
// message type, the decoded struct and any error encountered. Reply types
// and unknown types are rejected.
func ParseRequest(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if errors.Is(err, ErrMissingType) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg any
		err error
	)

	switch env.Type {
	case TypeScore:
		var m ScoreRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGroups:
		var m GroupsRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFeed:
		var m FeedRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeInterest:
		var m InterestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeInvite:
		var m InviteRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUninvite:
		var m UninviteRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown request type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewMessage marshals payload and sets its "type" and "request_id" fields.
// Both requests and replies are built with it.
func NewMessage(msgType, requestID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType
	m["request_id"] = requestID

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message: %w", err)
	}
	return out, nil
}

// NewReply is NewMessage for replies.
func NewReply(msgType, requestID string, payload any) ([]byte, error) {
	return NewMessage(msgType, requestID, payload)
}

// NewError builds an encoded ErrorReply.
func NewError(requestID, code, message string) []byte {
	data, err := NewReply(TypeError, requestID, ErrorReply{Code: code, Message: message})
	if err != nil {
		// ErrorReply only holds strings.
		panic(err)
	}
	return data
}

// DecodeReply decodes a reply into out. An ErrorReply is returned as the
// error; a reply of any type other than want is rejected.
func DecodeReply(data []byte, want string, out any) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type == TypeError {
		var e ErrorReply
		if err := json.Unmarshal(env.Raw, &e); err != nil {
			return fmt.Errorf("protocol: failed to decode error reply: %w", err)
		}
		return &e
	}
	if env.Type != want {
		return fmt.Errorf("protocol: expected %q reply, got %q", want, env.Type)
	}
	if err := json.Unmarshal(env.Raw, out); err != nil {
		return fmt.Errorf("protocol: failed to decode %q reply: %w", want, err)
	}
	return nil
}
