// Package accounts registers and looks up the identities that hold group
// memberships and coin balances.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// reservedNames cannot be registered because they collide with mention
// tokens.
var reservedNames = map[string]bool{
	"everyone": true,
}

// Directory reads and writes accounts.
type Directory struct {
	store storage.Store
}

// New creates a Directory backed by store.
func New(store storage.Store) *Directory {
	return &Directory{store: store}
}

// ValidateDisplayName reports whether name can be used as a mention handle.
func ValidateDisplayName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: display name is required", errs.ErrInvalidArgument)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: display name %q contains whitespace", errs.ErrInvalidArgument, name)
	}
	if strings.HasPrefix(name, "@") {
		return fmt.Errorf("%w: display name %q starts with @", errs.ErrInvalidArgument, name)
	}
	if reservedNames[name] {
		return fmt.Errorf("%w: display name %q is reserved", errs.ErrInvalidArgument, name)
	}
	return nil
}

// Register creates the account id with displayName and a zero balance.
// The id is the subject issued by the auth provider.
func (d *Directory) Register(ctx context.Context, id, displayName string) (*models.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: account id is required", errs.ErrInvalidArgument)
	}
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}

	row, err := d.store.Insert(ctx, storage.Accounts, storage.Row{
		"id":           id,
		"display_name": displayName,
		"coins":        int64(0),
		"created_at":   time.Now().UnixMilli(),
	})
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("account %q or display name %q: %w", id, displayName, errs.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return models.AccountFromRow(row), nil
}

// Get returns the account with the given id.
func (d *Directory) Get(ctx context.Context, id string) (*models.Account, error) {
	return d.one(ctx, storage.Filter{"id": id}, "account "+id)
}

// ByDisplayName returns the account registered under name.
func (d *Directory) ByDisplayName(ctx context.Context, name string) (*models.Account, error) {
	return d.one(ctx, storage.Filter{"display_name": name}, "display name "+name)
}

func (d *Directory) one(ctx context.Context, filter storage.Filter, what string) (*models.Account, error) {
	rows, err := d.store.Query(ctx, storage.Accounts, storage.Query{Where: filter, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", what, errs.ErrNotFound)
	}
	return models.AccountFromRow(rows[0]), nil
}
