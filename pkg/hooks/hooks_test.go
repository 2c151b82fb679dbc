package hooks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/async"
	"github.com/sitewright/cloudcode/pkg/billing"
	"github.com/sitewright/cloudcode/pkg/cascade"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/propagation"
	"github.com/sitewright/cloudcode/pkg/schema"
	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/store/memstore"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

type fakeGateway struct {
	mu       sync.Mutex
	defs     map[string]*schema.Definition
	applied  map[string]*acl.PermissionSet
	applyErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		defs:    make(map[string]*schema.Definition),
		applied: make(map[string]*acl.PermissionSet),
	}
}

func (g *fakeGateway) Fetch(ctx context.Context, table string) (*schema.Definition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defs[table], nil
}

func (g *fakeGateway) Apply(ctx context.Context, table string, def *schema.Definition) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.applyErr != nil {
		return g.applyErr
	}
	g.applied[table] = def.Permissions
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, table string) error { return nil }

func (g *fakeGateway) appliedPermissions(table string) *acl.PermissionSet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied[table]
}

type env struct {
	store       *memstore.Store
	repo        *tenant.Repo
	gateway     *fakeGateway
	propagation *propagation.Engine
	service     *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	repo := tenant.NewRepo(st)
	gw := newFakeGateway()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	registry, err := tenant.NewTableRegistry(repo, 128)
	require.NoError(t, err)

	pool := async.NewPool(context.Background(), 4, time.Second, logger, nil)
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })

	cascadeEngine := cascade.NewEngine(repo, gw, pool, logger, nil)
	propagationEngine := propagation.NewEngine(repo, gw, pool, logger, nil)
	billingService := billing.NewService(repo)

	return &env{
		store:       st,
		repo:        repo,
		gateway:     gw,
		propagation: propagationEngine,
		service: NewService(repo, registry, gw, cascadeEngine, propagationEngine,
			billingService, logger, nil),
	}
}

func (e *env) seed(t *testing.T, class string, a *acl.ACL, fields map[string]any) *store.Object {
	t.Helper()
	obj := store.NewObject(class)
	obj.SetACL(a)
	for k, v := range fields {
		obj.Set(k, v)
	}
	require.NoError(t, e.store.Create(context.Background(), obj))
	return obj
}

func (e *env) seedSite(t *testing.T, ownerID string) tenant.Site {
	t.Helper()
	return tenant.Site{Object: e.seed(t, tenant.ClassSite, acl.OwnerOnly(ownerID), map[string]any{
		tenant.FieldOwner:  store.Pointer{Class: tenant.ClassUser, ID: ownerID},
		tenant.FieldNameID: "demo",
	})}
}

func (e *env) seedCollab(t *testing.T, siteID, userID string, role tenant.Role, a *acl.ACL) tenant.Collaboration {
	t.Helper()
	return tenant.Collaboration{Object: e.seed(t, tenant.ClassCollaboration, a, map[string]any{
		tenant.FieldSite: store.Pointer{Class: tenant.ClassSite, ID: siteID},
		tenant.FieldUser: store.Pointer{Class: tenant.ClassUser, ID: userID},
		tenant.FieldRole: string(role),
	})}
}

func TestCollaborationBeforeSave(t *testing.T) {
	const owner = "owner-1"

	t.Run("master requests skip propagation", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		collab := e.seedCollab(t, site.ID, "alice", tenant.RoleAdmin, acl.OwnerOnly("someone-else"))

		require.NoError(t, e.service.CollaborationBeforeSave(context.Background(), Request{Master: true}, collab))
		e.propagation.Drain()

		siteACL, err := e.store.Get(context.Background(), tenant.ClassSite, site.ID)
		require.NoError(t, err)
		assert.False(t, siteACL.ACL().ReadAccess("alice"))
	})

	t.Run("denied actor", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		collab := e.seedCollab(t, site.ID, "alice", tenant.RoleAdmin, acl.OwnerOnly(owner))

		err := e.service.CollaborationBeforeSave(context.Background(), Request{ActorID: "stranger"}, collab)
		require.ErrorIs(t, err, acl.ErrAccessDenied)
	})

	t.Run("owner adds admin", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		collab := e.seedCollab(t, site.ID, "alice", tenant.RoleAdmin, acl.OwnerOnly(owner))

		require.NoError(t, e.service.CollaborationBeforeSave(context.Background(), Request{ActorID: owner}, collab))
		e.propagation.Drain()

		siteObj, err := e.store.Get(context.Background(), tenant.ClassSite, site.ID)
		require.NoError(t, err)
		assert.True(t, siteObj.ACL().ReadAccess("alice"))
		assert.True(t, siteObj.ACL().WriteAccess("alice"))
	})
}

func TestCollaborationBeforeDelete(t *testing.T) {
	const owner = "owner-1"
	e := newEnv(t)

	site := e.seedSite(t, owner)
	a := acl.OwnerOnly(owner)
	a.SetRead("alice", true)
	a.SetWrite("alice", true)
	site.SetACL(a)
	require.NoError(t, e.store.Save(context.Background(), site.Object))

	collab := e.seedCollab(t, site.ID, "alice", tenant.RoleAdmin, acl.OwnerOnly(owner))

	require.NoError(t, e.service.CollaborationBeforeDelete(context.Background(), Request{ActorID: owner}, collab))
	e.propagation.Drain()

	siteObj, err := e.store.Get(context.Background(), tenant.ClassSite, site.ID)
	require.NoError(t, err)
	assert.False(t, siteObj.ACL().ReadAccess("alice"))
}

func TestUserBeforeSave(t *testing.T) {
	e := newEnv(t)
	user := tenant.User{Object: store.NewObject(tenant.ClassUser)}
	user.Set(tenant.FieldEmail, "alice@example.com")
	user.Set(tenant.FieldUsername, "old-name")

	require.NoError(t, e.service.UserBeforeSave(context.Background(), user))
	assert.Equal(t, "alice@example.com", user.Username())
}

func TestUserAfterSave_ResolvesInvites(t *testing.T) {
	e := newEnv(t)
	site := e.seedSite(t, "owner-1")
	invite := e.seed(t, tenant.ClassCollaboration, nil, map[string]any{
		tenant.FieldSite:  store.Pointer{Class: tenant.ClassSite, ID: site.ID},
		tenant.FieldEmail: "alice@example.com",
		tenant.FieldRole:  string(tenant.RoleEditor),
	})
	userObj := e.seed(t, tenant.ClassUser, nil, map[string]any{
		tenant.FieldEmail: "alice@example.com",
	})

	require.NoError(t, e.service.UserAfterSave(context.Background(), tenant.User{Object: userObj}))
	e.propagation.Drain()

	saved, err := e.store.Get(context.Background(), tenant.ClassCollaboration, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, userObj.ID, tenant.Collaboration{Object: saved}.UserID())
}

func TestSiteBeforeSave(t *testing.T) {
	newSite := func() tenant.Site {
		return tenant.Site{Object: store.NewObject(tenant.ClassSite)}
	}

	t.Run("requires a signed-in actor", func(t *testing.T) {
		e := newEnv(t)
		err := e.service.SiteBeforeSave(context.Background(), Request{}, newSite())
		require.ErrorIs(t, err, ErrNotSignedIn)
	})

	t.Run("existing sites pass through", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, "owner-1")
		require.NoError(t, e.service.SiteBeforeSave(context.Background(), Request{}, site))
	})

	t.Run("no plan means unlimited", func(t *testing.T) {
		e := newEnv(t)
		user := e.seed(t, tenant.ClassUser, nil, nil)

		require.NoError(t, e.service.SiteBeforeSave(context.Background(), Request{ActorID: user.ID}, newSite()))
	})

	t.Run("quota exhausted", func(t *testing.T) {
		e := newEnv(t)
		plan := e.seed(t, tenant.ClassPayPlan, nil, map[string]any{
			tenant.FieldLimitSites: 1,
		})
		user := e.seed(t, tenant.ClassUser, nil, map[string]any{
			tenant.FieldPayPlan: store.Pointer{Class: tenant.ClassPayPlan, ID: plan.ID},
		})
		e.seed(t, tenant.ClassSite, nil, map[string]any{
			tenant.FieldOwner: store.Pointer{Class: tenant.ClassUser, ID: user.ID},
		})

		err := e.service.SiteBeforeSave(context.Background(), Request{ActorID: user.ID}, newSite())
		require.Error(t, err)
		assert.True(t, billing.IsQuotaExceeded(err))
	})
}

func TestModelBeforeSave(t *testing.T) {
	const owner = "owner-1"

	newModel := func(siteID string) tenant.Model {
		obj := store.NewObject(tenant.ClassModel)
		obj.Set(tenant.FieldSite, store.Pointer{Class: tenant.ClassSite, ID: siteID})
		obj.Set(tenant.FieldTableName, "ct____demo____Article")
		return tenant.Model{Object: obj}
	}

	t.Run("seeds acl and table permissions", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		e.seedCollab(t, site.ID, "admin-user", tenant.RoleAdmin, nil)
		e.seedCollab(t, site.ID, "editor-user", tenant.RoleEditor, nil)

		model := newModel(site.ID)
		require.NoError(t, e.service.ModelBeforeSave(context.Background(), Request{ActorID: owner}, model))

		a := model.ACL()
		require.NotNil(t, a)
		assert.True(t, a.ReadAccess(owner))
		assert.True(t, a.WriteAccess(owner))
		assert.True(t, a.ReadAccess("admin-user"))
		assert.True(t, a.WriteAccess("admin-user"))
		assert.True(t, a.ReadAccess("editor-user"))
		assert.False(t, a.WriteAccess("editor-user"))

		perms := e.gateway.appliedPermissions("ct____demo____Article")
		require.NotNil(t, perms)
		for _, id := range []string{owner, "admin-user", "editor-user"} {
			assert.True(t, perms.Allowed(acl.VerbGet, id), id)
			assert.True(t, perms.Allowed(acl.VerbFind, id), id)
		}
		assert.True(t, perms.Allowed(acl.VerbCreate, "editor-user"))
		assert.True(t, perms.Allowed(acl.VerbAddField, owner))
		assert.True(t, perms.Allowed(acl.VerbAddField, "admin-user"))
		assert.False(t, perms.Allowed(acl.VerbAddField, "editor-user"))
	})

	t.Run("provisioning failure is fatal", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		e.gateway.applyErr = errors.New("schema endpoint down")

		err := e.service.ModelBeforeSave(context.Background(), Request{ActorID: owner}, newModel(site.ID))
		require.Error(t, err)
	})

	t.Run("existing model untouched", func(t *testing.T) {
		e := newEnv(t)
		site := e.seedSite(t, owner)
		obj := e.seed(t, tenant.ClassModel, nil, map[string]any{
			tenant.FieldSite: store.Pointer{Class: tenant.ClassSite, ID: site.ID},
		})

		require.NoError(t, e.service.ModelBeforeSave(context.Background(), Request{ActorID: owner}, tenant.Model{Object: obj}))
		assert.Nil(t, obj.ACL())
	})
}

func TestModelFieldBeforeSave_SeedsACL(t *testing.T) {
	e := newEnv(t)
	site := e.seedSite(t, "owner-1")
	e.seedCollab(t, site.ID, "editor-user", tenant.RoleEditor, nil)
	model := e.seed(t, tenant.ClassModel, nil, map[string]any{
		tenant.FieldSite: store.Pointer{Class: tenant.ClassSite, ID: site.ID},
	})

	field := tenant.ModelField{Object: store.NewObject(tenant.ClassModelField)}
	field.Set(tenant.FieldModel, store.Pointer{Class: tenant.ClassModel, ID: model.ID})

	require.NoError(t, e.service.ModelFieldBeforeSave(context.Background(), Request{ActorID: "owner-1"}, field))

	a := field.ACL()
	require.NotNil(t, a)
	assert.True(t, a.ReadAccess("editor-user"))
	assert.False(t, a.WriteAccess("editor-user"))
	assert.Empty(t, e.gateway.applied, "no table permission push for fields")
}

func TestMediaItemBeforeSave_SeedsACL(t *testing.T) {
	e := newEnv(t)
	site := e.seedSite(t, "owner-1")
	e.seedCollab(t, site.ID, "admin-user", tenant.RoleAdmin, nil)

	item := tenant.MediaItem{Object: store.NewObject(tenant.ClassMediaItem)}
	item.Set(tenant.FieldSite, store.Pointer{Class: tenant.ClassSite, ID: site.ID})

	require.NoError(t, e.service.MediaItemBeforeSave(context.Background(), Request{ActorID: "owner-1"}, item))

	a := item.ACL()
	require.NotNil(t, a)
	assert.True(t, a.WriteAccess("admin-user"))
}

func TestModelBeforeDelete_KeepsRecordPrunesRefs(t *testing.T) {
	const owner = "owner-1"
	e := newEnv(t)
	site := e.seedSite(t, owner)

	victim := e.seed(t, tenant.ClassModel, acl.OwnerOnly(owner), map[string]any{
		tenant.FieldSite:      store.Pointer{Class: tenant.ClassSite, ID: site.ID},
		tenant.FieldNameID:    "Article",
		tenant.FieldTableName: "ct____demo____Article",
	})
	other := e.seed(t, tenant.ClassModel, acl.OwnerOnly(owner), map[string]any{
		tenant.FieldSite:      store.Pointer{Class: tenant.ClassSite, ID: site.ID},
		tenant.FieldNameID:    "Page",
		tenant.FieldTableName: "ct____demo____Page",
	})
	ref := e.seed(t, tenant.ClassModelField, nil, map[string]any{
		tenant.FieldModel: store.Pointer{Class: tenant.ClassModel, ID: other.ID},
		tenant.FieldType:  "Reference",
		tenant.FieldValidations: map[string]any{
			"models": map[string]any{
				"active":     true,
				"modelsList": []any{"Article"},
			},
		},
	})

	model := tenant.Model{Object: victim}
	require.NoError(t, e.service.ModelBeforeDelete(context.Background(), Request{ActorID: owner}, model))

	// The store removes the triggering record itself.
	_, err := e.store.Get(context.Background(), tenant.ClassModel, victim.ID)
	require.NoError(t, err)

	saved, err := e.store.Get(context.Background(), tenant.ClassModelField, ref.ID)
	require.NoError(t, err)
	v := tenant.ReferenceValidations(tenant.ModelField{Object: saved})
	require.NotNil(t, v)
	assert.False(t, v.Contains("Article"))
}

func TestSiteBeforeDelete(t *testing.T) {
	const owner = "owner-1"
	e := newEnv(t)
	site := e.seedSite(t, owner)
	collab := e.seedCollab(t, site.ID, "alice", tenant.RoleEditor, nil)

	require.NoError(t, e.service.SiteBeforeDelete(context.Background(), Request{ActorID: owner}, site))

	_, err := e.store.Get(context.Background(), tenant.ClassCollaboration, collab.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteContentItemFunction(t *testing.T) {
	const owner = "owner-1"
	const table = "ct____demo____Article"

	t.Run("requires actor", func(t *testing.T) {
		e := newEnv(t)
		err := e.service.DeleteContentItem(context.Background(), Request{}, table, "item-1")
		require.ErrorIs(t, err, ErrNotSignedIn)
	})

	t.Run("requires params", func(t *testing.T) {
		e := newEnv(t)
		err := e.service.DeleteContentItem(context.Background(), Request{ActorID: owner}, "", "")
		require.ErrorIs(t, err, ErrMissingParams)
	})

	t.Run("deletes the row", func(t *testing.T) {
		e := newEnv(t)
		row := e.seed(t, table, acl.OwnerOnly(owner), nil)

		require.NoError(t, e.service.DeleteContentItem(context.Background(), Request{ActorID: owner}, table, row.ID))

		_, err := e.store.Get(context.Background(), table, row.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestSiteNameID(t *testing.T) {
	e := newEnv(t)
	site := e.seedSite(t, "owner-1")

	nameID, err := e.service.SiteNameID(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", nameID)

	_, err = e.service.SiteNameID(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingParams)
}
