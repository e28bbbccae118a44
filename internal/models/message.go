package models

import "github.com/mmynk/zehem/internal/storage"

// Message is one immutable chat message in a group.
// Messages are ordered by CreatedAt ascending, ties broken by Seq.
type Message struct {
	// ID is the unique identifier for the message (UUID format).
	ID string

	// Seq is the store-assigned insertion number. Monotonic per store.
	Seq int64

	GroupID  string
	AuthorID string
	Body     string

	// MentionAll is set when an owner or admin used @everyone.
	MentionAll bool

	// CreatedAt is the Unix millisecond timestamp when the message was created.
	CreatedAt int64
}

// MessageFromRow builds a Message from a messages row.
func MessageFromRow(r storage.Row) *Message {
	return &Message{
		ID:         r.String("id"),
		Seq:        r.Int("seq"),
		GroupID:    r.String("group_id"),
		AuthorID:   r.String("author_id"),
		Body:       r.String("body"),
		MentionAll: r.Bool("mention_all"),
		CreatedAt:  r.Int("created_at"),
	}
}

// Mention notifies one account about one message.
// Read only ever moves from false to true.
type Mention struct {
	ID        string
	GroupID   string
	MessageID string
	AccountID string
	Read      bool
	CreatedAt int64
}

// MentionFromRow builds a Mention from a mentions row.
func MentionFromRow(r storage.Row) *Mention {
	return &Mention{
		ID:        r.String("id"),
		GroupID:   r.String("group_id"),
		MessageID: r.String("message_id"),
		AccountID: r.String("account_id"),
		Read:      r.Bool("read"),
		CreatedAt: r.Int("created_at"),
	}
}
