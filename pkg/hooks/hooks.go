package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/billing"
	"github.com/sitewright/cloudcode/pkg/cascade"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/propagation"
	"github.com/sitewright/cloudcode/pkg/schema"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

// ErrNotSignedIn is returned by handlers that require an authenticated
// actor.
var ErrNotSignedIn = errors.New("must be signed in")

// ErrMissingParams is returned by cloud functions called without their
// required parameters.
var ErrMissingParams = errors.New("missing required parameters")

// Request carries the identity of the caller a hook runs for. Master
// requests are elevated: hooks skip themselves entirely.
type Request struct {
	ActorID string
	Master  bool
}

// Service implements the trigger handlers and cloud functions.
type Service struct {
	repo        *tenant.Repo
	registry    *tenant.TableRegistry
	gateway     schema.Gateway
	cascade     *cascade.Engine
	propagation *propagation.Engine
	billing     *billing.Service
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewService wires the hook surface. metrics may be nil.
func NewService(
	repo *tenant.Repo,
	registry *tenant.TableRegistry,
	gw schema.Gateway,
	cascadeEngine *cascade.Engine,
	propagationEngine *propagation.Engine,
	billingService *billing.Service,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		repo:        repo,
		registry:    registry,
		gateway:     gw,
		cascade:     cascadeEngine,
		propagation: propagationEngine,
		billing:     billingService,
		logger:      logger,
		metrics:     metrics,
	}
}

// observe records one hook invocation. reason classifies the failure
// for the error counter.
func (s *Service) observe(class, trigger string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.HookInvocationsTotal.WithLabelValues(class, trigger).Inc()
	s.metrics.HookDuration.WithLabelValues(class, trigger).Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "internal"
		switch {
		case errors.Is(err, acl.ErrAccessDenied):
			reason = "access_denied"
		case errors.Is(err, ErrNotSignedIn):
			reason = "not_signed_in"
		case billing.IsQuotaExceeded(err):
			reason = "quota_exceeded"
		}
		s.metrics.HookErrorsTotal.WithLabelValues(class, trigger, reason).Inc()
	}
}

// CollaborationBeforeSave gates a collaboration save on the actor's
// rights and fans the role change out across the site.
func (s *Service) CollaborationBeforeSave(ctx context.Context, req Request, collab tenant.Collaboration) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassCollaboration, "beforeSave", start, err) }()
	if req.Master {
		return nil
	}
	if !acl.CheckRights(req.ActorID, collab.Object) {
		return fmt.Errorf("save collaboration: %w", acl.ErrAccessDenied)
	}
	return s.propagation.OnCollaborationModify(ctx, collab, false)
}

// CollaborationBeforeDelete revokes the collaborator's access across
// the site before the record goes away.
func (s *Service) CollaborationBeforeDelete(ctx context.Context, req Request, collab tenant.Collaboration) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassCollaboration, "beforeDelete", start, err) }()
	if req.Master {
		return nil
	}
	if !acl.CheckRights(req.ActorID, collab.Object) {
		return fmt.Errorf("delete collaboration: %w", acl.ErrAccessDenied)
	}
	return s.propagation.OnCollaborationModify(ctx, collab, true)
}

// UserBeforeSave keeps the username in lockstep with the email, which
// is the login identifier throughout the platform.
func (s *Service) UserBeforeSave(ctx context.Context, user tenant.User) error {
	if user.Username() != user.Email() {
		user.Set(tenant.FieldUsername, user.Email())
	}
	return nil
}

// UserAfterSave resolves any email invites waiting for this user.
func (s *Service) UserAfterSave(ctx context.Context, user tenant.User) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassUser, "afterSave", start, err) }()
	return s.propagation.ResolvePendingInvites(ctx, user)
}

// SiteBeforeSave enforces the pay-plan site limit on creation. Updates
// of existing sites pass through untouched.
func (s *Service) SiteBeforeSave(ctx context.Context, req Request, site tenant.Site) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassSite, "beforeSave", start, err) }()
	if req.Master || site.ID != "" {
		return nil
	}
	if req.ActorID == "" {
		return fmt.Errorf("save site: %w", ErrNotSignedIn)
	}

	userObj, err := s.repo.Store().Get(ctx, tenant.ClassUser, req.ActorID)
	if err != nil {
		return fmt.Errorf("failed to fetch user %s: %w", req.ActorID, err)
	}
	return s.billing.CheckSiteQuota(ctx, tenant.User{Object: userObj})
}

// collaboratorGrants builds the standard first-save ACL for a site's
// entity: owner plus every resolved collaborator gets read, admins get
// write. Pending invites are skipped.
func (s *Service) collaboratorGrants(ctx context.Context, site tenant.Site) (*acl.ACL, []tenant.Collaboration, error) {
	a := acl.OwnerOnly(site.OwnerID())
	collabs, err := s.repo.Collaborations(ctx, site.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range collabs {
		userID := c.UserID()
		if userID == "" {
			continue
		}
		a.SetRead(userID, true)
		a.SetWrite(userID, c.Role().IsAdmin())
	}
	return a, collabs, nil
}

// ModelBeforeSave provisions a newly created model: seeds its ACL from
// the site's collaborators and pushes the dynamic table's class-level
// permissions. The permission push is awaited; a model whose table
// cannot be provisioned must not be created.
func (s *Service) ModelBeforeSave(ctx context.Context, req Request, model tenant.Model) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassModel, "beforeSave", start, err) }()
	if req.Master || model.ID != "" {
		return nil
	}

	site, err := s.repo.Site(ctx, model.SiteID())
	if err != nil {
		return err
	}
	a, collabs, err := s.collaboratorGrants(ctx, site)
	if err != nil {
		return err
	}
	model.SetACL(a)

	ownerID := site.OwnerID()
	admins := []string{ownerID}
	writers := []string{ownerID}
	all := []string{ownerID}
	for _, c := range collabs {
		userID := c.UserID()
		if userID == "" {
			continue
		}
		role := c.Role()
		if role.IsAdmin() {
			admins = append(admins, userID)
		}
		if role.CanWrite() {
			writers = append(writers, userID)
		}
		all = append(all, userID)
	}

	perms := acl.NewPermissionSet()
	for _, id := range all {
		perms.Grant(acl.VerbGet, id)
		perms.Grant(acl.VerbFind, id)
	}
	for _, id := range writers {
		perms.Grant(acl.VerbCreate, id)
		perms.Grant(acl.VerbUpdate, id)
		perms.Grant(acl.VerbDelete, id)
	}
	for _, id := range admins {
		perms.Grant(acl.VerbAddField, id)
	}

	if err := s.gateway.Apply(ctx, model.TableName(), &schema.Definition{Permissions: perms}); err != nil {
		return fmt.Errorf("failed to provision table %s: %w", model.TableName(), err)
	}
	return nil
}

// ModelFieldBeforeSave seeds a new field's ACL from the owning model's
// site collaborators.
func (s *Service) ModelFieldBeforeSave(ctx context.Context, req Request, field tenant.ModelField) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassModelField, "beforeSave", start, err) }()
	if req.Master || field.ID != "" {
		return nil
	}

	model, err := s.repo.Model(ctx, field.ModelID())
	if err != nil {
		return err
	}
	site, err := s.repo.Site(ctx, model.SiteID())
	if err != nil {
		return err
	}
	a, _, err := s.collaboratorGrants(ctx, site)
	if err != nil {
		return err
	}
	field.SetACL(a)
	return nil
}

// MediaItemBeforeSave seeds a new media item's ACL from the site's
// collaborators.
func (s *Service) MediaItemBeforeSave(ctx context.Context, req Request, item tenant.MediaItem) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassMediaItem, "beforeSave", start, err) }()
	if req.Master || item.ID != "" {
		return nil
	}

	site, err := s.repo.Site(ctx, item.SiteID())
	if err != nil {
		return err
	}
	a, _, err := s.collaboratorGrants(ctx, site)
	if err != nil {
		return err
	}
	item.SetACL(a)
	return nil
}

// ModelBeforeDelete cascades a model deletion: fields, content rows,
// the dynamic table and sibling reference validations. The model record
// itself is removed by the store after the hook returns.
func (s *Service) ModelBeforeDelete(ctx context.Context, req Request, model tenant.Model) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassModel, "beforeDelete", start, err) }()
	if req.Master {
		return nil
	}
	return s.cascade.DeleteModel(ctx, req.ActorID, model, cascade.ModelOptions{DeleteRefs: true})
}

// SiteBeforeDelete tears down the site's models and collaborations.
func (s *Service) SiteBeforeDelete(ctx context.Context, req Request, site tenant.Site) (err error) {
	start := time.Now()
	defer func() { s.observe(tenant.ClassSite, "beforeDelete", start, err) }()
	if req.Master {
		return nil
	}
	if err := s.cascade.DeleteSite(ctx, req.ActorID, site); err != nil {
		return err
	}
	s.registry.Invalidate(site.ID)
	return nil
}

// DeleteContentItem is the callable entry point for removing one
// published content row with its draft and media.
func (s *Service) DeleteContentItem(ctx context.Context, req Request, tableName, itemID string) (err error) {
	start := time.Now()
	defer func() { s.observe("ContentItem", "function", start, err) }()
	if req.ActorID == "" {
		return fmt.Errorf("deleteContentItem: %w", ErrNotSignedIn)
	}
	if tableName == "" || itemID == "" {
		return fmt.Errorf("deleteContentItem: %w", ErrMissingParams)
	}
	return s.cascade.DeleteContentItem(ctx, req.ActorID, tableName, itemID)
}

// SiteNameID is the callable lookup of a site's stable name id, served
// from the registry cache.
func (s *Service) SiteNameID(ctx context.Context, siteID string) (string, error) {
	if siteID == "" {
		return "", fmt.Errorf("getSiteNameId: %w", ErrMissingParams)
	}
	return s.registry.SiteNameID(ctx, siteID)
}
