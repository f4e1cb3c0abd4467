package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nestmate/roommates/internal/messaging"
	"github.com/nestmate/roommates/internal/protocol"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.backend.Score(ctx, vars["a"], vars["b"])
	if err != nil {
		writeError(w, err)
		return
	}
	setQuota(w, reply.Quota)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.backend.Groups(ctx, mux.Vars(r)["owner"])
	if err != nil {
		writeError(w, err)
		return
	}
	if reply.Groups == nil {
		reply.Groups = []protocol.GroupView{}
	}
	setQuota(w, reply.Quota)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.backend.Invite(ctx, vars["owner"], vars["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	setQuota(w, reply.Quota)
	writeJSON(w, http.StatusCreated, reply)
}

// handleUninvite withdraws an invitation. Withdrawing one that does not
// exist still succeeds, with withdrawn=false.
func (s *Server) handleUninvite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.backend.Uninvite(ctx, vars["owner"], vars["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	setQuota(w, reply.Quota)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := s.config.FeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Error:   protocol.CodeBadRequest,
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	reply, err := s.backend.Feed(ctx, mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if reply.Entries == nil {
		reply.Entries = []protocol.FeedEntry{}
	}
	setQuota(w, reply.Quota)
	writeJSON(w, http.StatusOK, reply)
}

// handleInterest accepts an interest event. The matcher records it
// asynchronously, so the response only carries the event's request id.
func (s *Server) handleInterest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	from, to := vars["id"], vars["target"]
	if from == to {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   protocol.CodeBadRequest,
			Message: "cannot express interest in yourself",
		})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	id, err := s.backend.ExpressInterest(ctx, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": id})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

const rateLimitHeader = "X-RateLimit-Remaining"

// setQuota exposes the caller's remaining query allowance, when the
// matcher reported one.
func setQuota(w http.ResponseWriter, q protocol.Quota) {
	if q.RateRemaining != nil {
		w.Header().Set(rateLimitHeader, strconv.Itoa(*q.RateRemaining))
	}
}

// writeError maps backend errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var er *protocol.ErrorReply
	switch {
	case errors.As(err, &er):
		if er.Code == protocol.CodeRateLimited {
			w.Header().Set(rateLimitHeader, "0")
		}
		writeJSON(w, statusFor(er.Code), errorBody{Error: er.Code, Message: er.Message})
	case errors.Is(err, messaging.ErrNoResponders):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "matcher unavailable"})
	case errors.Is(err, messaging.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout", Message: "matcher did not respond in time"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: protocol.CodeInternal, Message: "internal error"})
	}
}

func statusFor(code string) int {
	switch code {
	case protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodeNotFound:
		return http.StatusNotFound
	case protocol.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
