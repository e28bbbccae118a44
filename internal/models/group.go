package models

import "github.com/mmynk/zehem/internal/storage"

// Visibility controls who may join a group without an invitation.
type Visibility string

const (
	// VisibilityPublic groups accept self-service joins.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate groups are joined by invitation only.
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Role is a member's standing inside one group.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Elevated reports whether the role may mention everyone and moderate.
func (r Role) Elevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Group is a chat group.
// The owner is fixed at creation and deleting the group is owner-only.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group.
	Name string

	// Description is free text shown on the group card.
	Description string

	// OwnerID is the account that created the group. Immutable.
	OwnerID string

	// Visibility is public or private.
	Visibility Visibility

	// CreatedAt is the Unix millisecond timestamp when the group was created.
	CreatedAt int64
}

// GroupFromRow builds a Group from a groups row.
func GroupFromRow(r storage.Row) *Group {
	return &Group{
		ID:          r.String("id"),
		Name:        r.String("name"),
		Description: r.String("description"),
		OwnerID:     r.String("owner_id"),
		Visibility:  Visibility(r.String("visibility")),
		CreatedAt:   r.Int("created_at"),
	}
}

// Membership associates an account with a group under a role.
type Membership struct {
	GroupID   string
	AccountID string
	Role      Role

	// DisplayName is the member's current display name. It is filled in by
	// reads that join accounts and is empty otherwise.
	DisplayName string

	// JoinedAt is the Unix millisecond timestamp when the membership was created.
	JoinedAt int64
}

// MembershipFromRow builds a Membership from a memberships row.
func MembershipFromRow(r storage.Row) *Membership {
	return &Membership{
		GroupID:   r.String("group_id"),
		AccountID: r.String("account_id"),
		Role:      Role(r.String("role")),
		JoinedAt:  r.Int("joined_at"),
	}
}
