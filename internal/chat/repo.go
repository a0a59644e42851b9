package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id.String()).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetMeta loads a chat without its transcript, for checks that only need
// ownership, visibility and state.
func (r *Repo) GetMeta(ctx context.Context, id uuid.UUID) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "state", "visibility").
		First(&c, "id = ?", id.String()).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Save rewrites the whole row, message document included. Last write wins;
// concurrent turns against one chat are not guarded.
func (r *Repo) Save(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *Repo) Delete(ctx context.Context, userID uint64, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id.String(), userID).
		Delete(&Chat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", id.String()).
		Update("title", title).Error
}

func (r *Repo) CountPinned(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Chat{}).
		Where("user_id = ? AND pinned = ?", userID, true).
		Count(&n).Error
	return n, err
}

// ListPinned returns the pinned block rendered above every history page.
func (r *Repo) ListPinned(ctx context.Context, userID uint64) ([]Chat, error) {
	var chats []Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND pinned = ?", userID, true).
		Order("created_at DESC").
		Limit(PinLimit).
		Find(&chats).Error
	return chats, err
}

// Page fetches one cursor page of unpinned chats, newest first. Cursors are
// chat ids resolved to createdAt boundaries; limit+1 rows are fetched so the
// caller can compute hasMore.
func (r *Repo) Page(ctx context.Context, userID uint64, limit int, startingAfter, endingBefore *uuid.UUID) ([]Chat, bool, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND pinned = ?", userID, false)

	reversed := false
	switch {
	case startingAfter != nil:
		cursor, err := r.Get(ctx, *startingAfter)
		if err != nil {
			return nil, false, err
		}
		q = q.Where("created_at < ?", cursor.CreatedAt).Order("created_at DESC")
	case endingBefore != nil:
		cursor, err := r.Get(ctx, *endingBefore)
		if err != nil {
			return nil, false, err
		}
		q = q.Where("created_at > ?", cursor.CreatedAt).Order("created_at ASC")
		reversed = true
	default:
		q = q.Order("created_at DESC")
	}

	var chats []Chat
	if err := q.Limit(limit + 1).Find(&chats).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(chats) > limit
	if hasMore {
		chats = chats[:limit]
	}
	if reversed {
		for i, j := 0, len(chats)-1; i < j; i, j = i+1, j-1 {
			chats[i], chats[j] = chats[j], chats[i]
		}
	}
	return chats, hasMore, nil
}

// SearchTitles is a case-insensitive substring match, unpaginated.
func (r *Repo) SearchTitles(ctx context.Context, userID uint64, query string) ([]Chat, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var chats []Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(title) LIKE ?", userID, pattern).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}

func (r *Repo) IncrementMessageCount(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("message_count", gorm.Expr("message_count + 1")).Error
}
