package propagation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/async"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/schema"
	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

// Engine fans collaboration changes out across the tenant graph.
type Engine struct {
	repo    *tenant.Repo
	gateway schema.Gateway
	pool    *async.Pool
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates a propagation engine. metrics may be nil.
func NewEngine(repo *tenant.Repo, gw schema.Gateway, pool *async.Pool, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		repo:    repo,
		gateway: gw,
		pool:    pool,
		logger:  logger,
		metrics: metrics,
	}
}

// Drain blocks until every queued fan-out write has finished. Callers
// use it on shutdown and in tests; request paths never wait.
func (e *Engine) Drain() { e.pool.Drain() }

// OnCollaborationModify recomputes access across the site after the
// collaboration is assigned a role (deleting=false) or removed
// (deleting=true). The collaboration's own ACL is mutated in place so
// the caller's subsequent save persists it; all other writes go through
// the background pool. A collaboration still pending as an email invite
// is a no-op.
func (e *Engine) OnCollaborationModify(ctx context.Context, collab tenant.Collaboration, deleting bool) error {
	userID := collab.UserID()
	if userID == "" {
		return nil
	}

	mode := "save"
	if deleting {
		mode = "delete"
	}
	if e.metrics != nil {
		e.metrics.PropagationRunsTotal.WithLabelValues(mode).Inc()
	}

	site, err := e.repo.Site(ctx, collab.SiteID())
	if err != nil {
		return err
	}
	ownerID := site.OwnerID()
	role := collab.Role()

	own := collab.ACL()
	if own == nil {
		own = acl.OwnerOnly(ownerID)
	}

	siblings, err := e.repo.CollaborationsExcludingUser(ctx, site.ID, userID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.ID == collab.ID {
			continue
		}

		sa := sib.ACL()
		if sa == nil {
			sa = acl.OwnerOnly(ownerID)
		}
		// Editors and viewers never gain write access to sibling
		// collaboration records.
		sa.SetRead(userID, !deleting)
		sa.SetWrite(userID, !deleting && role.IsAdmin())
		sib.SetACL(sa)
		e.saveDetached("collaboration", sib.Object)

		if deleting {
			continue
		}
		sibUserID := sib.UserID()
		if sibUserID == "" {
			continue
		}
		sibIsAdmin := sib.Role().IsAdmin()
		own.SetRead(sibUserID, sibIsAdmin)
		own.SetWrite(sibUserID, sibIsAdmin)
	}

	// The acting user always keeps full access to their own record.
	own.SetRead(userID, true)
	own.SetWrite(userID, true)
	collab.SetACL(own)

	var (
		mediaItems []tenant.MediaItem
		models     []tenant.Model
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mediaItems, err = e.repo.MediaItems(gctx, site.ID)
		return err
	})
	g.Go(func() error {
		var err error
		models, err = e.repo.Models(gctx, site.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	e.grant(site.Object, ownerID, userID, role, deleting)
	e.saveDetached("site", site.Object)

	for _, item := range mediaItems {
		e.grant(item.Object, ownerID, userID, role, deleting)
		e.saveDetached("media_item", item.Object)
	}

	modelIDs := make([]string, len(models))
	for i, model := range models {
		modelIDs[i] = model.ID
		e.grant(model.Object, ownerID, userID, role, deleting)
		e.saveDetached("model", model.Object)
		e.scheduleTablePermissions(model.TableName(), userID, role, deleting)
	}

	fields, err := e.repo.FieldsOfModels(ctx, modelIDs)
	if err != nil {
		return err
	}
	for _, field := range fields {
		e.grant(field.Object, ownerID, userID, role, deleting)
		e.saveDetached("model_field", field.Object)
	}
	return nil
}

// grant applies the standard per-entity rule: read while the user is on
// the site, write only for admins.
func (e *Engine) grant(obj *store.Object, ownerID, userID string, role tenant.Role, deleting bool) {
	a := obj.ACL()
	if a == nil {
		a = acl.OwnerOnly(ownerID)
	}
	a.SetRead(userID, !deleting)
	a.SetWrite(userID, !deleting && role.IsAdmin())
	obj.SetACL(a)
}

// scheduleTablePermissions queues the class-level permission update of
// one dynamic table. The whole fetch-mutate-apply runs detached; a
// table without a provisioned schema gets a fresh permission map.
func (e *Engine) scheduleTablePermissions(tableName, userID string, role tenant.Role, deleting bool) {
	err := e.pool.Submit("propagation.table_permissions", func(ctx context.Context) error {
		def, _ := e.gateway.Fetch(ctx, tableName)

		var perms *acl.PermissionSet
		if def != nil && def.Permissions != nil {
			perms = def.Permissions.Clone()
		} else {
			perms = acl.NewPermissionSet()
		}

		setVerb := func(v acl.Verb, allowed bool) {
			if allowed {
				perms.Grant(v, userID)
			} else {
				perms.Revoke(v, userID)
			}
		}
		setVerb(acl.VerbGet, !deleting)
		setVerb(acl.VerbFind, !deleting)
		setVerb(acl.VerbCreate, !deleting && role.CanWrite())
		setVerb(acl.VerbUpdate, !deleting && role.CanWrite())
		setVerb(acl.VerbDelete, !deleting && role.CanWrite())
		setVerb(acl.VerbAddField, !deleting && role.IsAdmin())

		if err := e.gateway.Apply(ctx, tableName, &schema.Definition{Permissions: perms}); err != nil {
			return fmt.Errorf("failed to update permissions of %s: %w", tableName, err)
		}
		e.wrote("table_permissions")
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("table", tableName).Warn("dropped table permission update")
	}
}

func (e *Engine) saveDetached(entity string, obj *store.Object) {
	err := e.pool.Submit("propagation."+entity, func(ctx context.Context) error {
		if err := e.repo.Store().Save(ctx, obj); err != nil {
			return fmt.Errorf("failed to save %s %s: %w", entity, obj.ID, err)
		}
		e.wrote(entity)
		return nil
	})
	if err != nil {
		e.logger.WithError(err).
			WithField("entity", entity).
			WithField("id", obj.ID).
			Warn("dropped detached save")
	}
}

func (e *Engine) wrote(entity string) {
	if e.metrics != nil {
		e.metrics.PropagationWritesTotal.WithLabelValues(entity).Inc()
	}
}

// ResolvePendingInvites attaches a freshly saved user to every pending
// collaboration carrying their email, persists the attachment and
// re-runs propagation for each. Save failures abort; propagation
// failures are isolated per collaboration.
func (e *Engine) ResolvePendingInvites(ctx context.Context, user tenant.User) error {
	collabs, err := e.repo.PendingCollaborationsByEmail(ctx, user.Email())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, collab := range collabs {
		c := collab
		c.AttachUser(user.ID)
		g.Go(func() error {
			if err := e.repo.Store().Save(gctx, c.Object); err != nil {
				return fmt.Errorf("failed to attach user to collaboration %s: %w", c.ID, err)
			}
			if err := e.OnCollaborationModify(gctx, c, false); err != nil {
				e.logger.WithError(err).
					WithField("collaboration", c.ID).
					Warn("failed to propagate resolved invite")
			}
			return nil
		})
	}
	return g.Wait()
}
