package chat

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateLoading  State = "loading"
	StateComplete State = "complete"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// PinLimit caps how many chats a user may pin at once.
const PinLimit = 5

type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartFile      PartType = "file"
	PartTool      PartType = "tool"
)

type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`

	// file parts
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`

	// tool invocation parts
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput json.RawMessage `json:"tool_output,omitempty"`
}

type Message struct {
	ID    uuid.UUID `json:"id"`
	Role  string    `json:"role"` // user | assistant
	Parts []Part    `json:"parts"`

	// Which model/provider produced an assistant message.
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Text concatenates the message's text parts, which is what providers see.
func (m Message) Text() string {
	out := ""
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// MessageList is the whole transcript stored as one JSON document in the
// chat row. Whole-document rewrites on every turn are accepted.
type MessageList []Message

func (l MessageList) Value() (driver.Value, error) {
	if l == nil {
		l = MessageList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *MessageList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = MessageList{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for MessageList", src)
	}
}

// TruncateBefore drops the message with the given id and everything after
// it. The list is returned unchanged when the id is absent.
func (l MessageList) TruncateBefore(id uuid.UUID) MessageList {
	for i, m := range l {
		if m.ID == id {
			return append(MessageList{}, l[:i]...)
		}
	}
	return l
}

// SliceThrough keeps everything up to and including the message with the
// given id; the bool reports whether the id was found.
func (l MessageList) SliceThrough(id uuid.UUID) (MessageList, bool) {
	for i, m := range l {
		if m.ID == id {
			return append(MessageList{}, l[:i+1]...), true
		}
	}
	return nil, false
}

type Chat struct {
	ID     uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID uint64    `gorm:"index;not null" json:"-"`
	Title  string    `gorm:"type:varchar(255);not null" json:"title"`

	Messages   MessageList `gorm:"type:longtext" json:"messages"`
	State      State       `gorm:"type:varchar(16);not null" json:"state"`
	Visibility Visibility  `gorm:"type:varchar(16);not null" json:"visibility"`
	Pinned     bool        `gorm:"index;not null;default:false" json:"pinned"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

// Readable reports whether the given user may view the chat.
func (c *Chat) Readable(userID uint64) bool {
	return c.UserID == userID || c.Visibility == VisibilityPublic
}
