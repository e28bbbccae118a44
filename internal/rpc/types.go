package rpc

import (
	"github.com/mmynk/zehem/internal/mention"
	"github.com/mmynk/zehem/internal/models"
)

// Account is the wire form of models.Account.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Coins       int64  `json:"coins"`
	CreatedAt   int64  `json:"createdAt"`
}

// Group is the wire form of models.Group.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId"`
	Visibility  string `json:"visibility"`
	CreatedAt   int64  `json:"createdAt"`
}

// Member is the wire form of models.Membership.
type Member struct {
	GroupID     string `json:"groupId"`
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	JoinedAt    int64  `json:"joinedAt"`
}

// Message is the wire form of models.Message as seen by one viewer.
type Message struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	GroupID    string `json:"groupId"`
	AuthorID   string `json:"authorId"`
	Body       string `json:"body"`
	MentionAll bool   `json:"mentionAll"`
	CreatedAt  int64  `json:"createdAt"`

	// Emphasized and Rest split Body for display to the requesting account.
	Emphasized string `json:"emphasized,omitempty"`
	Rest       string `json:"rest,omitempty"`
}

// Mention is the wire form of models.Mention.
type Mention struct {
	ID        string `json:"id"`
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
	AccountID string `json:"accountId"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}

// LedgerEntry is the wire form of models.LedgerEntry.
type LedgerEntry struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	Action       string `json:"action"`
	Requested    int64  `json:"requested"`
	Applied      int64  `json:"applied"`
	BalanceAfter int64  `json:"balanceAfter"`
	CreatedAt    int64  `json:"createdAt"`
}

// AccountFromModel converts a models.Account.
func AccountFromModel(a *models.Account) *Account {
	return &Account{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Coins:       a.Coins,
		CreatedAt:   a.CreatedAt,
	}
}

// GroupFromModel converts a models.Group.
func GroupFromModel(g *models.Group) *Group {
	return &Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		OwnerID:     g.OwnerID,
		Visibility:  string(g.Visibility),
		CreatedAt:   g.CreatedAt,
	}
}

// MemberFromModel converts a models.Membership.
func MemberFromModel(m *models.Membership) *Member {
	return &Member{
		GroupID:     m.GroupID,
		AccountID:   m.AccountID,
		DisplayName: m.DisplayName,
		Role:        string(m.Role),
		JoinedAt:    m.JoinedAt,
	}
}

// MessageFromModel converts a models.Message for a viewer with the given
// display name.
func MessageFromModel(m *models.Message, viewerName string) *Message {
	display := mention.Emphasis(m.Body, m.MentionAll, viewerName)
	return &Message{
		ID:         m.ID,
		Seq:        m.Seq,
		GroupID:    m.GroupID,
		AuthorID:   m.AuthorID,
		Body:       m.Body,
		MentionAll: m.MentionAll,
		CreatedAt:  m.CreatedAt,
		Emphasized: display.Emphasized,
		Rest:       display.Rest,
	}
}

// MentionFromModel converts a models.Mention.
func MentionFromModel(m *models.Mention) *Mention {
	return &Mention{
		ID:        m.ID,
		GroupID:   m.GroupID,
		MessageID: m.MessageID,
		AccountID: m.AccountID,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

// LedgerEntryFromModel converts a models.LedgerEntry.
func LedgerEntryFromModel(e *models.LedgerEntry) *LedgerEntry {
	return &LedgerEntry{
		ID:           e.ID,
		AccountID:    e.AccountID,
		Action:       string(e.Action),
		Requested:    e.Requested,
		Applied:      e.Applied,
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
}
