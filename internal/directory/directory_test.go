package directory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
	"github.com/mmynk/zehem/internal/storage/sqlite"
)

// setupDirectory creates a directory over a temp database with the given
// accounts registered. Account ids double as display names.
func setupDirectory(t *testing.T, ids ...string) (*Directory, storage.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	accts := accounts.New(store)
	for _, id := range ids {
		if _, err := accts.Register(context.Background(), id, id); err != nil {
			t.Fatalf("failed to register %s: %v", id, err)
		}
	}
	return New(store, 0), store
}

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}

func countRole(t *testing.T, d *Directory, groupID string, role models.Role) int {
	t.Helper()
	members, err := d.Members(context.Background(), groupID, 0)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	n := 0
	for _, m := range members {
		if m.Role == role {
			n++
		}
	}
	return n
}

func TestCreateGroup(t *testing.T) {
	d, _ := setupDirectory(t, "owner")
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "  Book Club ", "monthly reads", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.ID == "" {
		t.Error("expected group ID to be generated")
	}
	if group.Name != "Book Club" || group.OwnerID != "owner" || group.Visibility != models.VisibilityPublic {
		t.Errorf("unexpected group: %+v", group)
	}

	m, err := d.Membership(ctx, group.ID, "owner")
	if err != nil {
		t.Fatalf("Membership failed: %v", err)
	}
	if m.Role != models.RoleOwner || m.DisplayName != "owner" {
		t.Errorf("unexpected owner membership: %+v", m)
	}

	if _, err := d.CreateGroup(ctx, "owner", " ", "", ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("blank name: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.CreateGroup(ctx, "owner", "x", "", "secret"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("bad visibility: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.CreateGroup(ctx, "ghost", "x", "", ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown owner: expected ErrNotFound, got %v", err)
	}
}

func TestAddMember(t *testing.T) {
	d, _ := setupDirectory(t, "owner", "admin", "bob", "carl", "dora")
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := d.AddMember(ctx, "owner", group.ID, "admin", models.RoleAdmin); err != nil {
		t.Fatalf("owner adding admin failed: %v", err)
	}
	m, err := d.AddMember(ctx, "admin", group.ID, "bob", "")
	if err != nil {
		t.Fatalf("admin inviting member failed: %v", err)
	}
	if m.Role != models.RoleMember || m.DisplayName != "bob" {
		t.Errorf("unexpected membership: %+v", m)
	}

	tests := []struct {
		name    string
		caller  string
		account string
		role    models.Role
		want    error
	}{
		{"duplicate", "owner", "bob", models.RoleMember, errs.ErrDuplicateMembership},
		{"owner role never accepted", "owner", "carl", models.RoleOwner, errs.ErrInvalidArgument},
		{"unknown role", "owner", "carl", "moderator", errs.ErrInvalidArgument},
		{"member cannot invite", "bob", "carl", models.RoleMember, errs.ErrForbidden},
		{"outsider cannot invite", "dora", "carl", models.RoleMember, errs.ErrForbidden},
		{"admin cannot add admins", "admin", "carl", models.RoleAdmin, errs.ErrForbidden},
		{"unknown account", "owner", "ghost", models.RoleMember, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.AddMember(ctx, tt.caller, group.ID, tt.account, tt.role)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := d.AddMember(ctx, "owner", "missing", "carl", ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing group: expected ErrNotFound, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	d, _ := setupDirectory(t, "owner", "bob")
	ctx := context.Background()

	public, err := d.CreateGroup(ctx, "owner", "Open", "", models.VisibilityPublic)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	private, err := d.CreateGroup(ctx, "owner", "Closed", "", models.VisibilityPrivate)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := d.Join(ctx, public.ID, "bob"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := d.Join(ctx, public.ID, "bob"); !errors.Is(err, errs.ErrDuplicateMembership) {
		t.Errorf("second join: expected ErrDuplicateMembership, got %v", err)
	}
	if _, err := d.Join(ctx, private.ID, "bob"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("private join: expected ErrForbidden, got %v", err)
	}

	groups, err := d.ListGroups(ctx, "bob")
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != public.ID {
		t.Errorf("bob's groups = %+v, want only %s", groups, public.ID)
	}

	all, err := d.ListGroups(ctx, "")
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d groups, want 2", len(all))
	}

	none, err := d.ListGroups(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d groups for a non-member, want 0", len(none))
	}
}

func TestAdminCap(t *testing.T) {
	members := names("m", 8)
	d, _ := setupDirectory(t, append([]string{"owner"}, members...)...)
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range members {
		if _, err := d.Join(ctx, group.ID, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	for _, id := range members[:7] {
		if _, err := d.SetRole(ctx, "owner", group.ID, id, models.RoleAdmin); err != nil {
			t.Fatalf("promoting %s failed: %v", id, err)
		}
	}

	_, err = d.SetRole(ctx, "owner", group.ID, members[7], models.RoleAdmin)
	if !errors.Is(err, errs.ErrAdminCapExceeded) {
		t.Fatalf("8th promotion: expected ErrAdminCapExceeded, got %v", err)
	}
	if n := countRole(t, d, group.ID, models.RoleAdmin); n != 7 {
		t.Errorf("admin count = %d, want 7", n)
	}

	// Re-asserting an existing admin is not a new promotion.
	if _, err := d.SetRole(ctx, "owner", group.ID, members[0], models.RoleAdmin); err != nil {
		t.Errorf("no-op promotion failed: %v", err)
	}

	// Demotion never fails on the cap and frees a slot.
	if _, err := d.SetRole(ctx, "owner", group.ID, members[0], models.RoleMember); err != nil {
		t.Fatalf("demotion failed: %v", err)
	}
	if _, err := d.SetRole(ctx, "owner", group.ID, members[7], models.RoleAdmin); err != nil {
		t.Errorf("promotion after demotion failed: %v", err)
	}
}

func TestAdminCapConfigurable(t *testing.T) {
	d, store := setupDirectory(t, "owner", "a", "b")
	d = New(store, 1)
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := d.AddMember(ctx, "owner", group.ID, "a", models.RoleAdmin); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := d.AddMember(ctx, "owner", group.ID, "b", models.RoleAdmin); !errors.Is(err, errs.ErrAdminCapExceeded) {
		t.Errorf("expected ErrAdminCapExceeded, got %v", err)
	}
}

func TestConcurrentPromotionsRespectCap(t *testing.T) {
	members := names("m", 12)
	d, _ := setupDirectory(t, append([]string{"owner"}, members...)...)
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range members {
		if _, err := d.Join(ctx, group.ID, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	// One existing admin leaves cap-1 free slots for 11 contenders.
	if _, err := d.SetRole(ctx, "owner", group.ID, members[0], models.RoleAdmin); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		capped   int
	)
	for _, id := range members[1:] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := d.SetRole(ctx, "owner", group.ID, id, models.RoleAdmin)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, errs.ErrAdminCapExceeded):
				capped++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if admitted != 6 {
		t.Errorf("admitted %d promotions, want 6", admitted)
	}
	if capped != len(members)-1-6 {
		t.Errorf("%d promotions hit the cap, want %d", capped, len(members)-1-6)
	}
	if n := countRole(t, d, group.ID, models.RoleAdmin); n != DefaultAdminCap {
		t.Errorf("admin count = %d, want %d", n, DefaultAdminCap)
	}
}

func TestOwnerIsImmutable(t *testing.T) {
	d, _ := setupDirectory(t, "owner", "admin", "bob")
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := d.AddMember(ctx, "owner", group.ID, "admin", models.RoleAdmin); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := d.Join(ctx, group.ID, "bob"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"owner demotes self", func() error {
			_, err := d.SetRole(ctx, "owner", group.ID, "owner", models.RoleMember)
			return err
		}, errs.ErrForbidden},
		{"admin changes roles", func() error {
			_, err := d.SetRole(ctx, "admin", group.ID, "bob", models.RoleAdmin)
			return err
		}, errs.ErrForbidden},
		{"admin demotes owner", func() error {
			_, err := d.SetRole(ctx, "admin", group.ID, "owner", models.RoleMember)
			return err
		}, errs.ErrForbidden},
		{"transfer ownership", func() error {
			_, err := d.SetRole(ctx, "owner", group.ID, "bob", models.RoleOwner)
			return err
		}, errs.ErrInvalidArgument},
		{"owner leaves", func() error {
			return d.RemoveMember(ctx, "owner", group.ID, "owner")
		}, errs.ErrForbidden},
		{"admin removes owner", func() error {
			return d.RemoveMember(ctx, "admin", group.ID, "owner")
		}, errs.ErrForbidden},
		{"admin deletes group", func() error {
			return d.DeleteGroup(ctx, "admin", group.ID)
		}, errs.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n := countRole(t, d, group.ID, models.RoleOwner); n != 1 {
		t.Errorf("owner count = %d, want 1", n)
	}
	g, err := d.Group(ctx, group.ID)
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}
	if g.OwnerID != "owner" {
		t.Errorf("OwnerID = %q, want owner", g.OwnerID)
	}
}

func TestRemoveMember(t *testing.T) {
	d, _ := setupDirectory(t, "owner", "admin", "admin2", "bob", "carl")
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range []string{"admin", "admin2"} {
		if _, err := d.AddMember(ctx, "owner", group.ID, id, models.RoleAdmin); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
	}
	for _, id := range []string{"bob", "carl"} {
		if _, err := d.Join(ctx, group.ID, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	if err := d.RemoveMember(ctx, "bob", group.ID, "carl"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("member removing member: expected ErrForbidden, got %v", err)
	}
	if err := d.RemoveMember(ctx, "admin", group.ID, "admin2"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("admin removing admin: expected ErrForbidden, got %v", err)
	}
	if err := d.RemoveMember(ctx, "admin", group.ID, "carl"); err != nil {
		t.Errorf("admin removing member failed: %v", err)
	}
	if err := d.RemoveMember(ctx, "bob", group.ID, "bob"); err != nil {
		t.Errorf("self leave failed: %v", err)
	}
	if err := d.RemoveMember(ctx, "owner", group.ID, "admin2"); err != nil {
		t.Errorf("owner removing admin failed: %v", err)
	}
	if err := d.RemoveMember(ctx, "owner", group.ID, "bob"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("removing a non-member: expected ErrNotFound, got %v", err)
	}

	members, err := d.Members(ctx, group.ID, 0)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("got %d members, want 2 (owner, admin)", len(members))
	}
}

func TestRename(t *testing.T) {
	d, _ := setupDirectory(t, "owner", "admin", "bob")
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "Old", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := d.AddMember(ctx, "owner", group.ID, "admin", models.RoleAdmin); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := d.Join(ctx, group.ID, "bob"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	renamed, err := d.Rename(ctx, "admin", group.ID, "New")
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if renamed.Name != "New" {
		t.Errorf("Name = %q, want New", renamed.Name)
	}
	if _, err := d.Rename(ctx, "bob", group.ID, "Mine"); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("member rename: expected ErrForbidden, got %v", err)
	}
	if _, err := d.Rename(ctx, "owner", group.ID, ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("blank rename: expected ErrInvalidArgument, got %v", err)
	}
}

func TestMembersLimit(t *testing.T) {
	members := names("m", 5)
	d, _ := setupDirectory(t, append([]string{"owner"}, members...)...)
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "G", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range members {
		if _, err := d.Join(ctx, group.ID, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	got, err := d.Members(ctx, group.ID, 3)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d members, want 3", len(got))
	}
	for _, m := range got {
		if m.DisplayName != m.AccountID {
			t.Errorf("DisplayName = %q for %q", m.DisplayName, m.AccountID)
		}
	}

	if _, err := d.Members(ctx, "missing", 0); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing group: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	members := names("m", 49)
	d, store := setupDirectory(t, append([]string{"owner"}, members...)...)
	ctx := context.Background()

	group, err := d.CreateGroup(ctx, "owner", "Big", "", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range members {
		if _, err := d.Join(ctx, group.ID, id); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	now := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		msgID := fmt.Sprintf("msg-%d", i)
		if _, err := store.Insert(ctx, storage.Messages, storage.Row{
			"id": msgID, "group_id": group.ID, "author_id": "owner", "body": "hi", "created_at": now,
		}); err != nil {
			t.Fatalf("Insert message failed: %v", err)
		}
		if i < 3 {
			if _, err := store.Insert(ctx, storage.Mentions, storage.Row{
				"id": "mention-" + msgID, "group_id": group.ID, "message_id": msgID,
				"account_id": members[i], "read": false, "created_at": now,
			}); err != nil {
				t.Fatalf("Insert mention failed: %v", err)
			}
		}
	}
	if n := len(mustQuery(t, store, storage.Memberships, group.ID)); n != 50 {
		t.Fatalf("setup: %d memberships, want 50", n)
	}

	if err := d.DeleteGroup(ctx, "owner", group.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	for _, collection := range []string{storage.Memberships, storage.Messages, storage.Mentions} {
		if rows := mustQuery(t, store, collection, group.ID); len(rows) != 0 {
			t.Errorf("%d %s rows remain", len(rows), collection)
		}
	}
	if _, err := d.Group(ctx, group.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := d.DeleteGroup(ctx, "owner", group.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func mustQuery(t *testing.T, store storage.Store, collection, groupID string) []storage.Row {
	t.Helper()
	rows, err := store.Query(context.Background(), collection, storage.Query{
		Where: storage.Filter{"group_id": groupID},
	})
	if err != nil {
		t.Fatalf("Query %s failed: %v", collection, err)
	}
	return rows
}
