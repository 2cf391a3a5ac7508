package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const headerIdempotencyKey = "Idempotency-Key"

var errDuplicateRequest = errors.New("duplicate request")

type chatRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Response       string `json:"response"`
}

func (h *handler) postChat(c echo.Context) (err error) {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.ConversationID < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid conversation_id")
	}

	ctx := c.Request().Context()
	user := userID(c)

	if key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey)); key != "" && h.dedup != nil {
		added, derr := h.dedup.Add(ctx, user, key)
		if derr != nil {
			return fmt.Errorf("recording idempotency key: %w", derr)
		}
		if !added {
			return errDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			// Forget the key so the client can retry a failed turn.
			if rerr := h.dedup.Remove(context.WithoutCancel(ctx), user, key); rerr != nil {
				h.log.WithError(rerr).Warn("removing idempotency key")
			}
		}()
	}

	reply, err := h.chat.Chat(ctx, user, req.ConversationID, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chatResponse{ConversationID: reply.ConversationID, Response: reply.Response})
}
