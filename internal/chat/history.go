package chat

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetChat returns a chat the user may read: their own, or anyone's public one.
func (s *Service) GetChat(ctx context.Context, userID uint64, chatID uuid.UUID) (*Chat, error) {
	chat, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.Readable(userID) {
		// Hide existence of private chats.
		return nil, gorm.ErrRecordNotFound
	}
	return chat, nil
}

// ChatState reports the lifecycle state for the polling endpoint. The row
// is always consulted first so the cache can only shortcut the transcript
// load, never the readability check.
func (s *Service) ChatState(ctx context.Context, userID uint64, chatID uuid.UUID) (State, error) {
	meta, err := s.repo.GetMeta(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !meta.Readable(userID) {
		// Hide existence of private chats.
		return "", gorm.ErrRecordNotFound
	}
	if s.status != nil {
		if state, ok, err := s.status.GetChatState(ctx, chatID.String()); err == nil && ok {
			return State(state), nil
		}
	}
	return meta.State, nil
}

type HistoryPage struct {
	Pinned  []Chat
	Chats   []Chat
	HasMore bool
}

func (s *Service) History(ctx context.Context, userID uint64, limit int, startingAfter, endingBefore *uuid.UUID) (*HistoryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	pinned, err := s.repo.ListPinned(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats, hasMore, err := s.repo.Page(ctx, userID, limit, startingAfter, endingBefore)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Pinned: pinned, Chats: chats, HasMore: hasMore}, nil
}

func (s *Service) Search(ctx context.Context, userID uint64, query string) ([]Chat, error) {
	return s.repo.SearchTitles(ctx, userID, query)
}

// ChatPatch holds the mutable sidebar fields; nil means leave unchanged.
type ChatPatch struct {
	Title      *string
	Visibility *Visibility
	Pinned     *bool
}

func (s *Service) UpdateChat(ctx context.Context, userID uint64, chatID uuid.UUID, patch ChatPatch) (*Chat, error) {
	chat, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}

	if patch.Pinned != nil && *patch.Pinned && !chat.Pinned {
		n, err := s.repo.CountPinned(ctx, userID)
		if err != nil {
			return nil, err
		}
		if n >= PinLimit {
			return nil, ErrPinLimit
		}
	}

	if patch.Title != nil {
		chat.Title = *patch.Title
	}
	if patch.Visibility != nil {
		chat.Visibility = *patch.Visibility
	}
	if patch.Pinned != nil {
		chat.Pinned = *patch.Pinned
	}

	if err := s.repo.Save(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Service) DeleteChat(ctx context.Context, userID uint64, chatID uuid.UUID) error {
	return s.repo.Delete(ctx, userID, chatID)
}

// Branch forks the transcript through the given message inclusive into a
// brand-new chat owned by the caller. The source chat is untouched.
func (s *Service) Branch(ctx context.Context, userID uint64, chatID, messageID uuid.UUID) (*Chat, error) {
	source, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	sliced, found := source.Messages.SliceThrough(messageID)
	if !found {
		return nil, ErrMessageNotFound
	}

	fork := &Chat{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      source.Title,
		Messages:   sliced,
		State:      StateComplete,
		Visibility: VisibilityPrivate,
	}
	if err := s.repo.Create(ctx, fork); err != nil {
		return nil, err
	}
	s.cacheState(ctx, fork.ID, StateComplete)
	return fork, nil
}

// ApplyTitle is called by the worker once a title job completes. A chat
// deleted while the job was queued simply matches zero rows.
func (s *Service) ApplyTitle(ctx context.Context, chatID uuid.UUID, title string) error {
	return s.repo.UpdateTitle(ctx, chatID, title)
}
