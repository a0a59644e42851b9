package chat

import (
	"testing"

	"github.com/google/uuid"
)

func transcript(ids ...uuid.UUID) MessageList {
	out := make(MessageList, 0, len(ids))
	for i, id := range ids {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out = append(out, Message{ID: id, Role: role, Parts: []Part{{Type: PartText, Text: "m"}}})
	}
	return out
}

func TestTruncateBefore(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	list := transcript(a, b, c, d)

	got := list.TruncateBefore(c)
	if len(got) != 2 || got[0].ID != a || got[1].ID != b {
		t.Fatalf("expected [a b], got %d messages", len(got))
	}

	// First message: everything goes.
	if got := list.TruncateBefore(a); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}

	// Unknown id: list unchanged.
	if got := list.TruncateBefore(uuid.New()); len(got) != 4 {
		t.Fatalf("expected unchanged list, got %d", len(got))
	}

	// The original must not be mutated.
	if len(list) != 4 {
		t.Fatalf("original list mutated: %d", len(list))
	}
}

func TestSliceThrough(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	list := transcript(a, b, c)

	got, found := list.SliceThrough(b)
	if !found {
		t.Fatalf("expected to find b")
	}
	if len(got) != 2 || got[1].ID != b {
		t.Fatalf("expected slice through b inclusive, got %d messages", len(got))
	}

	if _, found := list.SliceThrough(uuid.New()); found {
		t.Fatalf("unknown id must not be found")
	}
}

func TestMessageText(t *testing.T) {
	m := Message{Parts: []Part{
		{Type: PartReasoning, Text: "hidden"},
		{Type: PartText, Text: "hello "},
		{Type: PartText, Text: "world"},
	}}
	if got := m.Text(); got != "hello world" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestChatReadable(t *testing.T) {
	c := &Chat{UserID: 1, Visibility: VisibilityPrivate}
	if !c.Readable(1) {
		t.Fatalf("owner must read a private chat")
	}
	if c.Readable(2) {
		t.Fatalf("stranger must not read a private chat")
	}
	c.Visibility = VisibilityPublic
	if !c.Readable(2) {
		t.Fatalf("anyone may read a public chat")
	}
}
