// Package directory owns groups and the memberships inside them.
//
// Each group has exactly one owner, fixed at creation. The owner may
// promote members to admin up to the directory's admin cap, and is the only
// one who may delete the group. Every read-check-write sequence runs inside
// one store transaction that first locks the group row, so concurrent
// promotions are serialized by the store.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// DefaultAdminCap is the maximum number of admins a group may have.
const DefaultAdminCap = 7

// Directory manages groups and memberships.
type Directory struct {
	store    storage.Store
	adminCap int
}

// New creates a Directory backed by store. A non-positive adminCap selects
// DefaultAdminCap.
func New(store storage.Store, adminCap int) *Directory {
	if adminCap <= 0 {
		adminCap = DefaultAdminCap
	}
	return &Directory{store: store, adminCap: adminCap}
}

// AdminCap returns the admin cap in force.
func (d *Directory) AdminCap() int {
	return d.adminCap
}

// CreateGroup creates a group owned by ownerID. The owner membership is
// written in the same transaction.
func (d *Directory) CreateGroup(ctx context.Context, ownerID, name, description string, visibility models.Visibility) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", errs.ErrInvalidArgument)
	}
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: unknown visibility %q", errs.ErrInvalidArgument, visibility)
	}

	groupID := uuid.NewString()
	err := d.store.Atomically(ctx, func(tx storage.Tx) error {
		if err := requireAccount(ctx, tx, ownerID); err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		if _, err := tx.Insert(ctx, storage.Groups, storage.Row{
			"id":          groupID,
			"name":        name,
			"description": description,
			"owner_id":    ownerID,
			"visibility":  string(visibility),
			"created_at":  now,
		}); err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		if _, err := tx.Insert(ctx, storage.Memberships, storage.Row{
			"group_id":   groupID,
			"account_id": ownerID,
			"role":       string(models.RoleOwner),
			"joined_at":  now,
		}); err != nil {
			return fmt.Errorf("failed to insert owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.Group(ctx, groupID)
}

// AddMember invites accountID into the group. The caller must be the owner
// or an admin; only the owner may add directly as admin.
func (d *Directory) AddMember(ctx context.Context, callerID, groupID, accountID string, role models.Role) (*models.Membership, error) {
	if role == "" {
		role = models.RoleMember
	}
	if role == models.RoleOwner || !role.Valid() {
		return nil, fmt.Errorf("%w: cannot add a member as %q", errs.ErrInvalidArgument, role)
	}

	err := d.store.Atomically(ctx, func(tx storage.Tx) error {
		if _, err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}

		caller, err := membership(ctx, tx, groupID, callerID)
		if err != nil {
			return err
		}
		if caller == nil || !caller.Role.Elevated() {
			return fmt.Errorf("only the owner or an admin can add members: %w", errs.ErrForbidden)
		}
		if role == models.RoleAdmin && caller.Role != models.RoleOwner {
			return fmt.Errorf("only the owner can add admins: %w", errs.ErrForbidden)
		}

		return d.insertMember(ctx, tx, groupID, accountID, role)
	})
	if err != nil {
		return nil, err
	}
	return d.Membership(ctx, groupID, accountID)
}

// Join adds accountID to a public group as a member.
func (d *Directory) Join(ctx context.Context, groupID, accountID string) (*models.Membership, error) {
	err := d.store.Atomically(ctx, func(tx storage.Tx) error {
		group, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.Visibility != models.VisibilityPublic {
			return fmt.Errorf("group %s is private: %w", groupID, errs.ErrForbidden)
		}
		return d.insertMember(ctx, tx, groupID, accountID, models.RoleMember)
	})
	if err != nil {
		return nil, err
	}
	return d.Membership(ctx, groupID, accountID)
}

func (d *Directory) insertMember(ctx context.Context, tx storage.Tx, groupID, accountID string, role models.Role) error {
	if err := requireAccount(ctx, tx, accountID); err != nil {
		return err
	}
	existing, err := membership(ctx, tx, groupID, accountID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("account %s in group %s: %w", accountID, groupID, errs.ErrDuplicateMembership)
	}
	if role == models.RoleAdmin {
		if err := d.checkAdminCap(ctx, tx, groupID); err != nil {
			return err
		}
	}

	if _, err := tx.Insert(ctx, storage.Memberships, storage.Row{
		"group_id":   groupID,
		"account_id": accountID,
		"role":       string(role),
		"joined_at":  time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// SetRole changes a member's role between admin and member. Only the owner
// may call it, and the owner's own membership can never be the target.
func (d *Directory) SetRole(ctx context.Context, callerID, groupID, accountID string, role models.Role) (*models.Membership, error) {
	if role == models.RoleOwner || !role.Valid() {
		return nil, fmt.Errorf("%w: cannot assign role %q", errs.ErrInvalidArgument, role)
	}

	err := d.store.Atomically(ctx, func(tx storage.Tx) error {
		group, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.OwnerID != callerID {
			return fmt.Errorf("only the owner can change roles: %w", errs.ErrForbidden)
		}
		if accountID == group.OwnerID {
			return fmt.Errorf("the owner's role cannot change: %w", errs.ErrForbidden)
		}

		target, err := membership(ctx, tx, groupID, accountID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("account %s in group %s: %w", accountID, groupID, errs.ErrNotFound)
		}
		if target.Role == role {
			return nil
		}
		if role == models.RoleAdmin {
			if err := d.checkAdminCap(ctx, tx, groupID); err != nil {
				return err
			}
		}

		if _, err := tx.Update(ctx, storage.Memberships,
			storage.Filter{"group_id": groupID, "account_id": accountID},
			storage.Row{"role": string(role)},
		); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.Membership(ctx, groupID, accountID)
}

func (d *Directory) checkAdminCap(ctx context.Context, tx storage.Tx, groupID string) error {
	admins, err := tx.Query(ctx, storage.Memberships, storage.Query{
		Where: storage.Filter{"group_id": groupID, "role": string(models.RoleAdmin)},
	})
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if len(admins) >= d.adminCap {
		return fmt.Errorf("group %s already has %d admins: %w", groupID, len(admins), errs.ErrAdminCapExceeded)
	}
	return nil
}

// RemoveMember removes accountID from the group. Members may leave on their
// own, the owner may remove anyone else and admins may remove plain members.
// The owner can never be removed.
func (d *Directory) RemoveMember(ctx context.Context, callerID, groupID, accountID string) error {
	return d.store.Atomically(ctx, func(tx storage.Tx) error {
		group, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if accountID == group.OwnerID {
			return fmt.Errorf("the owner cannot leave the group: %w", errs.ErrForbidden)
		}

		target, err := membership(ctx, tx, groupID, accountID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("account %s in group %s: %w", accountID, groupID, errs.ErrNotFound)
		}

		if callerID != accountID && callerID != group.OwnerID {
			caller, err := membership(ctx, tx, groupID, callerID)
			if err != nil {
				return err
			}
			if caller == nil || caller.Role != models.RoleAdmin || target.Role != models.RoleMember {
				return fmt.Errorf("cannot remove %s: %w", accountID, errs.ErrForbidden)
			}
		}

		if _, err := tx.Delete(ctx, storage.Memberships, storage.Filter{"group_id": groupID, "account_id": accountID}); err != nil {
			return fmt.Errorf("failed to delete membership: %w", err)
		}
		return nil
	})
}

// DeleteGroup destroys the group with all of its memberships, messages and
// mentions. Only the owner may delete a group.
func (d *Directory) DeleteGroup(ctx context.Context, callerID, groupID string) error {
	return d.store.Atomically(ctx, func(tx storage.Tx) error {
		group, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.OwnerID != callerID {
			return fmt.Errorf("only the owner can delete the group: %w", errs.ErrForbidden)
		}

		filter := storage.Filter{"group_id": groupID}
		for _, collection := range []string{storage.Mentions, storage.Messages, storage.Memberships} {
			if _, err := tx.Delete(ctx, collection, filter); err != nil {
				return fmt.Errorf("failed to delete %s: %w", collection, err)
			}
		}
		if _, err := tx.Delete(ctx, storage.Groups, storage.Filter{"id": groupID}); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		return nil
	})
}

// Rename changes the group name. The owner and admins may rename.
func (d *Directory) Rename(ctx context.Context, callerID, groupID, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", errs.ErrInvalidArgument)
	}

	err := d.store.Atomically(ctx, func(tx storage.Tx) error {
		if _, err := lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		caller, err := membership(ctx, tx, groupID, callerID)
		if err != nil {
			return err
		}
		if caller == nil || !caller.Role.Elevated() {
			return fmt.Errorf("only the owner or an admin can rename: %w", errs.ErrForbidden)
		}
		if _, err := tx.Update(ctx, storage.Groups, storage.Filter{"id": groupID}, storage.Row{"name": name}); err != nil {
			return fmt.Errorf("failed to rename group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.Group(ctx, groupID)
}
