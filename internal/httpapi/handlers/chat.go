package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/catalog"
	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
)

type partReq struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	MediaTyp string `json:"media_type,omitempty"`
	URL      string `json:"url,omitempty"`
}

type sendTurnReq struct {
	ChatID         string    `json:"chat_id" binding:"required"`
	MessageID      string    `json:"message_id"`
	Message        string    `json:"message"`
	Parts          []partReq `json:"parts"`
	Model          string    `json:"model" binding:"required"`
	Effort         string    `json:"effort"`
	Visibility     string    `json:"visibility"`
	WebSearch      bool      `json:"web_search"`
	RetryMessageID string    `json:"retry_message_id"`
}

func (r sendTurnReq) toParts() []chat.Part {
	if len(r.Parts) == 0 {
		return []chat.Part{{Type: chat.PartText, Text: r.Message}}
	}
	out := make([]chat.Part, 0, len(r.Parts))
	for _, p := range r.Parts {
		out = append(out, chat.Part{
			Type:      chat.PartType(p.Type),
			Text:      p.Text,
			Filename:  p.Filename,
			MediaType: p.MediaTyp,
			URL:       p.URL,
		})
	}
	return out
}

// SendTurn streams one chat turn over SSE. Validation problems are plain
// JSON errors before any SSE framing starts.
func (h *Handler) SendTurn(c *gin.Context) {
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req sendTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid chat id")
		return
	}

	turnReq := chat.TurnRequest{
		ChatID:     chatID,
		Parts:      req.toParts(),
		ModelID:    req.Model,
		Effort:     req.Effort,
		Visibility: chat.Visibility(req.Visibility),
		WebSearch:  req.WebSearch,
	}
	if req.MessageID != "" {
		mid, err := uuid.Parse(req.MessageID)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid message id")
			return
		}
		turnReq.MessageID = mid
	}
	if req.RetryMessageID != "" {
		rid, err := uuid.Parse(req.RetryMessageID)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10006, "invalid retry message id")
			return
		}
		turnReq.RetryMessageID = &rid
	}

	ctx := c.Request.Context()
	turn, err := h.ChatSvc.SendTurn(ctx, user, keySetFromRequest(c), turnReq)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			common.Fail(c, http.StatusBadRequest, 10007, "message has no text")
		case errors.Is(err, chat.ErrMessageTooLong):
			common.Fail(c, http.StatusBadRequest, 10008, "message too long")
		case errors.Is(err, chat.ErrInvalidPart):
			common.Fail(c, http.StatusBadRequest, 10018, "unsupported message part type")
		case errors.Is(err, chat.ErrInvalidVisibility):
			common.Fail(c, http.StatusBadRequest, 10013, "invalid visibility")
		case errors.Is(err, chat.ErrUnknownModel):
			common.Fail(c, http.StatusBadRequest, 10009, "unknown model")
		case errors.Is(err, catalog.ErrNotConfigured):
			common.Fail(c, http.StatusBadRequest, 10010, "no API key configured for this model")
		case errors.Is(err, chat.ErrNotOwner):
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	events, msgIDCh, errs := turn.Events, turn.MessageID, turn.Errs
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			writeJSON(ev.Type, ev)

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			writeJSON("error", gin.H{
				"type":    "error",
				"message": err.Error(),
			})
			return

		case mid, ok := <-msgIDCh:
			if !ok {
				msgIDCh = nil
				continue
			}
			writeJSON("done", gin.H{
				"type":       "done",
				"message_id": mid,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

// ChatStatus serves the polling endpoint used to detect a finished turn
// after a dropped stream.
func (h *Handler) ChatStatus(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid chat id")
		return
	}

	state, err := h.ChatSvc.ChatState(c.Request.Context(), uid, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"state": state})
}
