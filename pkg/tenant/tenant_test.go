package tenant

import (
	"context"
	"testing"

	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/store/memstore"
)

func newSite(t *testing.T, s store.Store, nameID, ownerID string) Site {
	t.Helper()
	obj := store.NewObject(ClassSite)
	obj.Set(FieldNameID, nameID)
	obj.Set(FieldOwner, store.Pointer{Class: ClassUser, ID: ownerID})
	if err := s.Create(context.Background(), obj); err != nil {
		t.Fatal(err)
	}
	return Site{obj}
}

func TestRoles(t *testing.T) {
	if !RoleAdmin.CanWrite() || !RoleAdmin.IsAdmin() {
		t.Error("admin role lost capabilities")
	}
	if !RoleEditor.CanWrite() || RoleEditor.IsAdmin() {
		t.Error("editor role capabilities wrong")
	}
	if Role("viewer").CanWrite() || Role("").CanWrite() {
		t.Error("unnamed roles must be read-only")
	}
}

func TestCollaboration_AttachUser(t *testing.T) {
	obj := store.NewObject(ClassCollaboration)
	obj.Set(FieldEmail, "new@example.com")
	c := Collaboration{obj}

	if c.UserID() != "" {
		t.Fatal("expected pending collaboration")
	}
	c.AttachUser("u9")
	if c.UserID() != "u9" {
		t.Errorf("UserID = %q, want u9", c.UserID())
	}
	if c.Email() != "" {
		t.Error("email marker not cleared")
	}
}

func TestReferenceValidations(t *testing.T) {
	mk := func(payload any) ModelField {
		obj := store.NewObject(ClassModelField)
		obj.Set(FieldType, "Reference")
		if payload != nil {
			obj.Set(FieldValidations, payload)
		}
		return ModelField{obj}
	}

	t.Run("well formed", func(t *testing.T) {
		f := mk(map[string]any{
			"models": map[string]any{
				"active":     true,
				"modelsList": []any{"post", "author"},
			},
		})
		v := ReferenceValidations(f)
		if v == nil {
			t.Fatal("expected parsed validations")
		}
		if !v.Contains("post") {
			t.Error("missing allow-list entry")
		}
		if !v.Remove("post") {
			t.Error("remove reported no change")
		}
		if v.Contains("post") {
			t.Error("entry still present after remove")
		}
		if v.Remove("post") {
			t.Error("second remove should be a no-op")
		}

		list := v.Payload()["models"].(map[string]any)["modelsList"].([]any)
		if len(list) != 1 || list[0] != "author" {
			t.Errorf("payload list = %v, want [author]", list)
		}
	})

	malformed := []struct {
		name    string
		payload any
	}{
		{"absent", nil},
		{"not a map", "garbage"},
		{"no models key", map[string]any{}},
		{"inactive", map[string]any{"models": map[string]any{"active": false, "modelsList": []any{"x"}}}},
		{"no list", map[string]any{"models": map[string]any{"active": true}}},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			if v := ReferenceValidations(mk(tt.payload)); v != nil {
				t.Error("expected nil for malformed payload")
			}
		})
	}
}

func TestRepo_CollaborationQueries(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	repo := NewRepo(ms)
	site := newSite(t, ms, "acme", "owner")

	addCollab := func(userID, email string, role Role) {
		obj := store.NewObject(ClassCollaboration)
		obj.Set(FieldSite, store.Pointer{Class: ClassSite, ID: site.ID})
		if userID != "" {
			obj.Set(FieldUser, store.Pointer{Class: ClassUser, ID: userID})
		}
		obj.Set(FieldEmail, email)
		obj.Set(FieldRole, string(role))
		if err := ms.Create(ctx, obj); err != nil {
			t.Fatal(err)
		}
	}
	addCollab("u1", "", RoleAdmin)
	addCollab("u2", "", RoleEditor)
	addCollab("", "invited@example.com", RoleEditor)

	all, err := repo.Collaborations(ctx, site.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d collaborations, want 3", len(all))
	}

	siblings, err := repo.CollaborationsExcludingUser(ctx, site.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(siblings) != 2 {
		t.Errorf("got %d siblings, want 2", len(siblings))
	}

	pending, err := repo.PendingCollaborationsByEmail(ctx, "invited@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].UserID() != "" {
		t.Error("pending collaboration should have no user")
	}
}

func TestTableRegistry(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	repo := NewRepo(ms)
	site := newSite(t, ms, "acme", "owner")

	reg, err := NewTableRegistry(repo, 8)
	if err != nil {
		t.Fatal(err)
	}

	name, err := reg.Resolve(ctx, site.ID, "Developer_App")
	if err != nil {
		t.Fatal(err)
	}
	if name != "ct____acme____Developer_App" {
		t.Errorf("table = %q", name)
	}
	if !IsDynamicTable(name) {
		t.Error("expected dynamic table name to be recognized")
	}
	if IsDynamicTable(ClassModel) {
		t.Error("fixed class flagged as dynamic")
	}

	// Second resolve is served from cache even if the site vanishes.
	if err := ms.Delete(ctx, ClassSite, site.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Resolve(ctx, site.ID, "Category"); err != nil {
		t.Errorf("cached resolve failed: %v", err)
	}

	// Invalidation forces a fresh lookup, which now fails.
	reg.Invalidate(site.ID)
	if _, err := reg.Resolve(ctx, site.ID, "Category"); err == nil {
		t.Error("expected resolve to fail after invalidation")
	}
}
