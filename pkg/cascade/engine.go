package cascade

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/schema"
	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

// ModelOptions controls how far a model deletion cascades.
type ModelOptions struct {
	// DeleteRefs prunes the model's nameId from the Reference-field
	// validations of the site's other models.
	DeleteRefs bool

	// DeleteRecord destroys the model record itself. Hook callers leave
	// this false because the store deletes the triggering record after
	// the hook returns.
	DeleteRecord bool
}

// Submitter is the fire-and-forget surface the engine needs from the
// background pool. *async.Pool satisfies it.
type Submitter interface {
	Submit(name string, fn func(context.Context) error) error
}

// Engine performs cascading deletes over the tenant graph.
type Engine struct {
	repo    *tenant.Repo
	gateway schema.Gateway
	pool    Submitter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates a cascade engine. metrics may be nil.
func NewEngine(repo *tenant.Repo, gw schema.Gateway, pool Submitter, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		repo:    repo,
		gateway: gw,
		pool:    pool,
		logger:  logger,
		metrics: metrics,
	}
}

// DeleteContentItem removes a published content row together with its
// draft and referenced media. The actor must pass the rights check on
// the row and, when one exists, on its draft; a draft rights failure
// aborts the whole operation. Media destruction is fire-and-forget.
func (e *Engine) DeleteContentItem(ctx context.Context, actorID, tableName, itemID string) error {
	defer e.observe("delete_content_item", time.Now())

	item, err := e.repo.Store().Get(ctx, tableName, itemID)
	if err != nil {
		return fmt.Errorf("failed to fetch %s/%s: %w", tableName, itemID, err)
	}
	if !acl.CheckRights(actorID, item) {
		e.skipped("content_item")
		return fmt.Errorf("delete %s/%s: %w", tableName, itemID, acl.ErrAccessDenied)
	}

	// Absence of a remote schema just means no media fields to chase.
	def, _ := e.gateway.Fetch(ctx, tableName)
	e.destroyMedia(def, item)

	draft, err := e.repo.Draft(ctx, tableName, itemID)
	if err != nil {
		return err
	}
	if draft != nil {
		if !acl.CheckRights(actorID, draft) {
			e.skipped("draft")
			return fmt.Errorf("delete draft of %s/%s: %w", tableName, itemID, acl.ErrAccessDenied)
		}
		e.destroyMedia(def, draft)
		if err := e.repo.Store().Delete(ctx, tableName, draft.ID); err != nil {
			return fmt.Errorf("failed to delete draft of %s/%s: %w", tableName, itemID, err)
		}
		e.deleted("draft")
	}

	if err := e.repo.Store().Delete(ctx, tableName, itemID); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", tableName, itemID, err)
	}
	e.deleted("content_item")
	return nil
}

// destroyMedia queues deletion of every media item the row points at
// through a Pointer field targeting MediaItem. Failures stay in the
// background pool.
func (e *Engine) destroyMedia(def *schema.Definition, row *store.Object) {
	if def == nil {
		return
	}
	for name, field := range def.Fields {
		if field.Type != schema.FieldTypePointer || field.TargetClass != tenant.ClassMediaItem {
			continue
		}
		ptr := row.Pointer(name)
		if ptr == nil {
			continue
		}
		mediaID := ptr.ID
		err := e.pool.Submit("cascade.media", func(ctx context.Context) error {
			if err := e.repo.Store().Delete(ctx, tenant.ClassMediaItem, mediaID); err != nil {
				return fmt.Errorf("failed to delete media item %s: %w", mediaID, err)
			}
			e.deleted("media_item")
			return nil
		})
		if err != nil {
			e.logger.WithError(err).WithField("mediaItem", mediaID).Warn("dropped media cleanup")
		}
	}
}

// DeleteModel removes a model's fields, content rows and dynamic table.
// Fields the actor cannot write are skipped, not fatal; content-row and
// table-drop failures are likewise isolated so the rest of the cascade
// still runs.
func (e *Engine) DeleteModel(ctx context.Context, actorID string, model tenant.Model, opts ModelOptions) error {
	defer e.observe("delete_model", time.Now())

	if !acl.CheckRights(actorID, model.Object) {
		e.skipped("model")
		return fmt.Errorf("delete model %s: %w", model.ID, acl.ErrAccessDenied)
	}

	if err := e.deleteFields(ctx, actorID, model.ID); err != nil {
		return err
	}
	if err := e.deleteContentRows(ctx, actorID, model.TableName()); err != nil {
		return err
	}

	// Best effort: the table may never have been materialized.
	if err := e.gateway.Delete(ctx, model.TableName()); err != nil {
		e.logger.WithError(err).WithField("table", model.TableName()).Warn("failed to drop dynamic table")
	} else {
		e.deleted("table")
	}

	if opts.DeleteRefs {
		if err := e.pruneReferenceValidations(ctx, model); err != nil {
			return err
		}
	}

	if opts.DeleteRecord {
		if err := e.repo.Store().Delete(ctx, tenant.ClassModel, model.ID); err != nil {
			return fmt.Errorf("failed to delete model %s: %w", model.ID, err)
		}
		e.deleted("model")
	}
	return nil
}

func (e *Engine) deleteFields(ctx context.Context, actorID, modelID string) error {
	fields, err := e.repo.Fields(ctx, modelID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, field := range fields {
		if !acl.CheckRights(actorID, field.Object) {
			e.skipped("model_field")
			continue
		}
		fieldID := field.ID
		g.Go(func() error {
			if err := e.repo.Store().Delete(gctx, tenant.ClassModelField, fieldID); err != nil {
				e.logger.WithError(err).WithField("field", fieldID).Warn("failed to delete model field")
				return nil
			}
			e.deleted("model_field")
			return nil
		})
	}
	return g.Wait()
}

// isDraft reports whether a content row hangs off a published row. The
// back-reference arrives either as a bare id or as a pointer.
func isDraft(row *store.Object) bool {
	return row.String(tenant.FieldDraftOwner) != "" || row.Pointer(tenant.FieldDraftOwner) != nil
}

func (e *Engine) deleteContentRows(ctx context.Context, actorID, tableName string) error {
	rows, err := e.repo.ContentRows(ctx, tableName)
	if err != nil {
		// A model whose table was never created has no rows to delete.
		e.logger.WithError(err).WithField("table", tableName).Debug("content rows unavailable")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, row := range rows {
		// Drafts go down with their published row.
		if isDraft(row) {
			continue
		}
		rowID := row.ID
		g.Go(func() error {
			if err := e.DeleteContentItem(gctx, actorID, tableName, rowID); err != nil {
				e.logger.WithError(err).
					WithField("table", tableName).
					WithField("item", rowID).
					Warn("failed to delete content item")
			}
			return nil
		})
	}
	return g.Wait()
}

// pruneReferenceValidations drops the deleted model's nameId from the
// Reference-field allow-lists of the site's remaining models. Fields
// with malformed payloads are skipped.
func (e *Engine) pruneReferenceValidations(ctx context.Context, model tenant.Model) error {
	models, err := e.repo.Models(ctx, model.SiteID())
	if err != nil {
		return err
	}
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	refs, err := e.repo.ReferenceFieldsExcludingModel(ctx, ids, model.ID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, field := range refs {
		v := tenant.ReferenceValidations(field)
		if v == nil || !v.Remove(model.NameID()) {
			continue
		}
		field.Set(tenant.FieldValidations, v.Payload())
		obj := field.Object
		g.Go(func() error {
			if err := e.repo.Store().Save(gctx, obj); err != nil {
				e.logger.WithError(err).WithField("field", obj.ID).Warn("failed to prune reference validations")
				return nil
			}
			e.deleted("reference_validation")
			return nil
		})
	}
	return g.Wait()
}

// DeleteSite tears a site down: every model (without reference pruning,
// the references die with the site) and every collaboration. Per-model
// failures are isolated.
func (e *Engine) DeleteSite(ctx context.Context, actorID string, site tenant.Site) error {
	defer e.observe("delete_site", time.Now())

	if !acl.CheckRights(actorID, site.Object) {
		e.skipped("site")
		return fmt.Errorf("delete site %s: %w", site.ID, acl.ErrAccessDenied)
	}

	models, err := e.repo.Models(ctx, site.ID)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, model := range models {
		m := model
		g.Go(func() error {
			if err := e.DeleteModel(gctx, actorID, m, ModelOptions{DeleteRecord: true}); err != nil {
				e.logger.WithError(err).WithField("model", m.ID).Warn("failed to delete model during site teardown")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	collabs, err := e.repo.Collaborations(ctx, site.ID)
	if err != nil {
		return err
	}
	g, gctx = errgroup.WithContext(ctx)
	for _, collab := range collabs {
		collabID := collab.ID
		g.Go(func() error {
			if err := e.repo.Store().Delete(gctx, tenant.ClassCollaboration, collabID); err != nil {
				e.logger.WithError(err).WithField("collaboration", collabID).Warn("failed to delete collaboration")
				return nil
			}
			e.deleted("collaboration")
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) deleted(entity string) {
	if e.metrics != nil {
		e.metrics.CascadeDeletesTotal.WithLabelValues(entity).Inc()
	}
}

func (e *Engine) skipped(entity string) {
	if e.metrics != nil {
		e.metrics.CascadeSkippedTotal.WithLabelValues(entity).Inc()
	}
}

func (e *Engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.CascadeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
