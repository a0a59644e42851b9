package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
)

func cursorParam(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// ListChats returns the pinned set plus one page of the rest, newest first.
func (h *Handler) ListChats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit := h.Cfg.HistoryPageSize
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	startingAfter, ok := cursorParam(c, "starting_after")
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid starting_after")
		return
	}
	endingBefore, ok := cursorParam(c, "ending_before")
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid ending_before")
		return
	}
	if startingAfter != nil && endingBefore != nil {
		common.Fail(c, http.StatusBadRequest, 10011, "starting_after and ending_before are exclusive")
		return
	}

	page, err := h.ChatSvc.History(c.Request.Context(), uid, limit, startingAfter, endingBefore)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusBadRequest, 10012, "cursor chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list chats")
		return
	}

	common.OK(c, gin.H{
		"pinned":   summaries(page.Pinned),
		"chats":    summaries(page.Chats),
		"has_more": page.HasMore,
	})
}

// summaries strips transcripts out of list responses.
func summaries(chats []chat.Chat) []gin.H {
	out := make([]gin.H, 0, len(chats))
	for _, ch := range chats {
		out = append(out, gin.H{
			"id":         ch.ID,
			"title":      ch.Title,
			"state":      ch.State,
			"visibility": ch.Visibility,
			"pinned":     ch.Pinned,
			"created_at": ch.CreatedAt,
			"updated_at": ch.UpdatedAt,
		})
	}
	return out
}

func (h *Handler) SearchChats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		common.OK(c, gin.H{"chats": []gin.H{}})
		return
	}

	chats, err := h.ChatSvc.Search(c.Request.Context(), uid, query)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to search chats")
		return
	}

	common.OK(c, gin.H{"chats": summaries(chats)})
}

func (h *Handler) GetChat(c *gin.Context) {
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

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), uid, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"chat": ch})
}

type updateChatReq struct {
	Title      *string `json:"title"`
	Visibility *string `json:"visibility"`
	Pinned     *bool   `json:"pinned"`
}

func (h *Handler) UpdateChat(c *gin.Context) {
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

	var req updateChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	patch := chat.ChatPatch{Title: req.Title, Pinned: req.Pinned}
	if req.Visibility != nil {
		v := chat.Visibility(*req.Visibility)
		if v != chat.VisibilityPrivate && v != chat.VisibilityPublic {
			common.Fail(c, http.StatusBadRequest, 10013, "invalid visibility")
			return
		}
		patch.Visibility = &v
	}

	ch, err := h.ChatSvc.UpdateChat(c.Request.Context(), uid, chatID, patch)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
		case errors.Is(err, chat.ErrPinLimit):
			common.Fail(c, http.StatusBadRequest, 10014, err.Error())
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	common.OK(c, gin.H{
		"id":         ch.ID,
		"title":      ch.Title,
		"visibility": ch.Visibility,
		"pinned":     ch.Pinned,
	})
}

func (h *Handler) DeleteChat(c *gin.Context) {
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

	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

// ExportChat serves the full transcript as a JSON download.
func (h *Handler) ExportChat(c *gin.Context) {
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

	ch, err := h.ChatSvc.GetChat(c.Request.Context(), uid, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="chat-`+ch.ID.String()+`.json"`)
	c.JSON(http.StatusOK, gin.H{
		"id":         ch.ID,
		"title":      ch.Title,
		"messages":   ch.Messages,
		"created_at": ch.CreatedAt,
	})
}

type branchChatReq struct {
	MessageID string `json:"message_id" binding:"required"`
}

// BranchChat forks a readable chat into a fresh private one owned by the
// caller, keeping the transcript through the given message.
func (h *Handler) BranchChat(c *gin.Context) {
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

	var req branchChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid message id")
		return
	}

	fork, err := h.ChatSvc.Branch(c.Request.Context(), uid, chatID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "chat not found")
		case errors.Is(err, chat.ErrMessageNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "message not found")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	common.OK(c, gin.H{"chat": fork})
}
