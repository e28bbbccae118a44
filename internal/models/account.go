package models

import "github.com/mmynk/zehem/internal/storage"

// Account is an identity that can join groups, send messages and hold coins.
type Account struct {
	// ID is the unique identifier for the account. It is the subject of the
	// bearer token issued by the external auth provider.
	ID string

	// DisplayName is the unique handle used for @mentions. It never
	// contains whitespace.
	DisplayName string

	// Coins is the ZEHEM coin balance. Never negative.
	Coins int64

	// CreatedAt is the Unix millisecond timestamp when the account was created.
	CreatedAt int64
}

// AccountFromRow builds an Account from an accounts row.
func AccountFromRow(r storage.Row) *Account {
	return &Account{
		ID:          r.String("id"),
		DisplayName: r.String("display_name"),
		Coins:       r.Int("coins"),
		CreatedAt:   r.Int("created_at"),
	}
}
