package directory

import (
	"context"
	"fmt"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// Group returns the group with the given id.
func (d *Directory) Group(ctx context.Context, groupID string) (*models.Group, error) {
	return findGroup(ctx, d.store, groupID, false)
}

// ListGroups returns every group, oldest first. When accountID is set only
// the groups the account belongs to are returned.
func (d *Directory) ListGroups(ctx context.Context, accountID string) ([]*models.Group, error) {
	q := storage.Query{OrderBy: []storage.Order{{Column: "created_at"}}}
	if accountID != "" {
		rows, err := d.store.Query(ctx, storage.Memberships, storage.Query{
			Where: storage.Filter{"account_id": accountID},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list memberships: %w", err)
		}
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.String("group_id")
		}
		q.Where = storage.Filter{"id": ids}
	}

	rows, err := d.store.Query(ctx, storage.Groups, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]*models.Group, len(rows))
	for i, r := range rows {
		groups[i] = models.GroupFromRow(r)
	}
	return groups, nil
}

// Members returns the group's members in join order with their display
// names. A positive limit caps the result.
func (d *Directory) Members(ctx context.Context, groupID string, limit int) ([]*models.Membership, error) {
	if _, err := d.Group(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := LoadMembers(ctx, d.store, groupID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	return members, nil
}

// Membership returns one membership with its display name.
func (d *Directory) Membership(ctx context.Context, groupID, accountID string) (*models.Membership, error) {
	m, err := membership(ctx, d.store, groupID, accountID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("account %s in group %s: %w", accountID, groupID, errs.ErrNotFound)
	}

	rows, err := d.store.Query(ctx, storage.Accounts, storage.Query{Where: storage.Filter{"id": accountID}})
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if len(rows) > 0 {
		m.DisplayName = rows[0].String("display_name")
	}
	return m, nil
}

// LoadMembers reads the membership snapshot of a group through q, joined
// with the members' display names. Callers inside a transaction pass the
// transaction so the snapshot is consistent with their writes.
func LoadMembers(ctx context.Context, q storage.Querier, groupID string) ([]*models.Membership, error) {
	rows, err := q.Query(ctx, storage.Memberships, storage.Query{
		Where:   storage.Filter{"group_id": groupID},
		OrderBy: []storage.Order{{Column: "joined_at"}, {Column: "account_id"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	members := make([]*models.Membership, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		members[i] = models.MembershipFromRow(r)
		ids[i] = members[i].AccountID
	}

	accounts, err := q.Query(ctx, storage.Accounts, storage.Query{Where: storage.Filter{"id": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to read member accounts: %w", err)
	}
	names := make(map[string]string, len(accounts))
	for _, r := range accounts {
		names[r.String("id")] = r.String("display_name")
	}
	for _, m := range members {
		m.DisplayName = names[m.AccountID]
	}
	return members, nil
}

// RequireGroup returns errs.ErrNotFound when the group does not exist.
func RequireGroup(ctx context.Context, q storage.Querier, groupID string) (*models.Group, error) {
	return findGroup(ctx, q, groupID, false)
}

func lockGroup(ctx context.Context, tx storage.Tx, groupID string) (*models.Group, error) {
	return findGroup(ctx, tx, groupID, true)
}

func findGroup(ctx context.Context, q storage.Querier, groupID string, forUpdate bool) (*models.Group, error) {
	rows, err := q.Query(ctx, storage.Groups, storage.Query{
		Where:     storage.Filter{"id": groupID},
		ForUpdate: forUpdate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read group: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, errs.ErrNotFound)
	}
	return models.GroupFromRow(rows[0]), nil
}

// membership returns nil without error when the pair does not exist.
func membership(ctx context.Context, q storage.Querier, groupID, accountID string) (*models.Membership, error) {
	rows, err := q.Query(ctx, storage.Memberships, storage.Query{
		Where: storage.Filter{"group_id": groupID, "account_id": accountID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read membership: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return models.MembershipFromRow(rows[0]), nil
}

func requireAccount(ctx context.Context, q storage.Querier, accountID string) error {
	rows, err := q.Query(ctx, storage.Accounts, storage.Query{Where: storage.Filter{"id": accountID}})
	if err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("account %s: %w", accountID, errs.ErrNotFound)
	}
	return nil
}
