package tenant

import (
	"context"
	"fmt"

	"github.com/sitewright/cloudcode/pkg/store"
)

// Repo provides the tenant-entity queries shared by the engines. All
// reads run with the store's elevated privileges; rights filtering
// happens in the callers.
type Repo struct {
	store store.Store
}

// NewRepo creates a repo over a document store.
func NewRepo(s store.Store) *Repo {
	return &Repo{store: s}
}

// Store exposes the underlying document store.
func (r *Repo) Store() store.Store { return r.store }

// Site fetches a site by id.
func (r *Repo) Site(ctx context.Context, siteID string) (Site, error) {
	obj, err := r.store.Get(ctx, ClassSite, siteID)
	if err != nil {
		return Site{}, fmt.Errorf("failed to fetch site %s: %w", siteID, err)
	}
	return Site{obj}, nil
}

// Model fetches a model by id.
func (r *Repo) Model(ctx context.Context, modelID string) (Model, error) {
	obj, err := r.store.Get(ctx, ClassModel, modelID)
	if err != nil {
		return Model{}, fmt.Errorf("failed to fetch model %s: %w", modelID, err)
	}
	return Model{obj}, nil
}

// Collaborations returns every collaboration of a site.
func (r *Repo) Collaborations(ctx context.Context, siteID string) ([]Collaboration, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassCollaboration).EqualTo(FieldSite, siteID))
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborations of site %s: %w", siteID, err)
	}
	collabs := make([]Collaboration, len(objs))
	for i, obj := range objs {
		collabs[i] = Collaboration{obj}
	}
	return collabs, nil
}

// CollaborationsExcludingUser returns a site's collaborations minus the
// given user's own record.
func (r *Repo) CollaborationsExcludingUser(ctx context.Context, siteID, userID string) ([]Collaboration, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassCollaboration).
		EqualTo(FieldSite, siteID).
		NotEqualTo(FieldUser, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sibling collaborations of site %s: %w", siteID, err)
	}
	collabs := make([]Collaboration, len(objs))
	for i, obj := range objs {
		collabs[i] = Collaboration{obj}
	}
	return collabs, nil
}

// PendingCollaborationsByEmail returns collaborations whose invite
// email matches and whose user is still unresolved.
func (r *Repo) PendingCollaborationsByEmail(ctx context.Context, email string) ([]Collaboration, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassCollaboration).EqualTo(FieldEmail, email))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending collaborations for %s: %w", email, err)
	}
	var collabs []Collaboration
	for _, obj := range objs {
		c := Collaboration{obj}
		if c.UserID() == "" {
			collabs = append(collabs, c)
		}
	}
	return collabs, nil
}

// Models returns every model of a site.
func (r *Repo) Models(ctx context.Context, siteID string) ([]Model, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassModel).EqualTo(FieldSite, siteID))
	if err != nil {
		return nil, fmt.Errorf("failed to list models of site %s: %w", siteID, err)
	}
	models := make([]Model, len(objs))
	for i, obj := range objs {
		models[i] = Model{obj}
	}
	return models, nil
}

// Fields returns every field of a model.
func (r *Repo) Fields(ctx context.Context, modelID string) ([]ModelField, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassModelField).EqualTo(FieldModel, modelID))
	if err != nil {
		return nil, fmt.Errorf("failed to list fields of model %s: %w", modelID, err)
	}
	fields := make([]ModelField, len(objs))
	for i, obj := range objs {
		fields[i] = ModelField{obj}
	}
	return fields, nil
}

// FieldsOfModels returns every field belonging to any of the models.
func (r *Repo) FieldsOfModels(ctx context.Context, modelIDs []string) ([]ModelField, error) {
	if len(modelIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(modelIDs))
	for i, id := range modelIDs {
		ids[i] = id
	}
	objs, err := r.store.Find(ctx, store.NewQuery(ClassModelField).ContainedIn(FieldModel, ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list fields of models: %w", err)
	}
	fields := make([]ModelField, len(objs))
	for i, obj := range objs {
		fields[i] = ModelField{obj}
	}
	return fields, nil
}

// ReferenceFieldsExcludingModel returns the Reference-typed fields of
// the given models that do not belong to the excluded model.
func (r *Repo) ReferenceFieldsExcludingModel(ctx context.Context, modelIDs []string, excludeModelID string) ([]ModelField, error) {
	if len(modelIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(modelIDs))
	for i, id := range modelIDs {
		ids[i] = id
	}
	objs, err := r.store.Find(ctx, store.NewQuery(ClassModelField).
		ContainedIn(FieldModel, ids).
		NotEqualTo(FieldModel, excludeModelID).
		EqualTo(FieldType, "Reference"))
	if err != nil {
		return nil, fmt.Errorf("failed to list reference fields: %w", err)
	}
	fields := make([]ModelField, len(objs))
	for i, obj := range objs {
		fields[i] = ModelField{obj}
	}
	return fields, nil
}

// MediaItems returns every media item of a site.
func (r *Repo) MediaItems(ctx context.Context, siteID string) ([]MediaItem, error) {
	objs, err := r.store.Find(ctx, store.NewQuery(ClassMediaItem).EqualTo(FieldSite, siteID))
	if err != nil {
		return nil, fmt.Errorf("failed to list media items of site %s: %w", siteID, err)
	}
	items := make([]MediaItem, len(objs))
	for i, obj := range objs {
		items[i] = MediaItem{obj}
	}
	return items, nil
}

// ContentRows returns every row of a dynamic content table.
func (r *Repo) ContentRows(ctx context.Context, tableName string) ([]*store.Object, error) {
	rows, err := r.store.Find(ctx, store.NewQuery(tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to list rows of %s: %w", tableName, err)
	}
	return rows, nil
}

// Draft returns the draft row backing a published content row, or nil.
func (r *Repo) Draft(ctx context.Context, tableName, publishedID string) (*store.Object, error) {
	draft, err := r.store.First(ctx, store.NewQuery(tableName).EqualTo(FieldDraftOwner, publishedID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up draft of %s/%s: %w", tableName, publishedID, err)
	}
	return draft, nil
}

// SiteCountByOwner counts the sites a user owns.
func (r *Repo) SiteCountByOwner(ctx context.Context, ownerID string) (int, error) {
	n, err := r.store.Count(ctx, store.NewQuery(ClassSite).EqualTo(FieldOwner, ownerID))
	if err != nil {
		return 0, fmt.Errorf("failed to count sites of %s: %w", ownerID, err)
	}
	return n, nil
}
