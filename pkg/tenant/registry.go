package tenant

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// tablePrefix namespaces dynamic content tables in the shared backend.
const tablePrefix = "ct"

// TableRegistry maps (site, model name) pairs to physical dynamic
// table names. Physical names keep the historical
// ct____{siteNameId}____{ModelName} layout for backend compatibility,
// but are only ever produced here. Site nameId lookups are LRU-cached;
// entries are invalidated on site teardown.
type TableRegistry struct {
	repo  *Repo
	cache *lru.Cache[string, string]
}

// NewTableRegistry creates a registry with an LRU nameId cache.
func NewTableRegistry(repo *Repo, cacheSize int) (*TableRegistry, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry cache: %w", err)
	}
	return &TableRegistry{repo: repo, cache: cache}, nil
}

// SiteNameID resolves a site's stable short identifier.
func (tr *TableRegistry) SiteNameID(ctx context.Context, siteID string) (string, error) {
	if nameID, ok := tr.cache.Get(siteID); ok {
		return nameID, nil
	}

	site, err := tr.repo.Site(ctx, siteID)
	if err != nil {
		return "", err
	}
	nameID := site.NameID()
	if nameID == "" {
		return "", fmt.Errorf("site %s has no nameId", siteID)
	}

	tr.cache.Add(siteID, nameID)
	return nameID, nil
}

// Resolve returns the physical table name for a model of a site.
func (tr *TableRegistry) Resolve(ctx context.Context, siteID, modelName string) (string, error) {
	nameID, err := tr.SiteNameID(ctx, siteID)
	if err != nil {
		return "", err
	}
	return PhysicalTableName(nameID, modelName), nil
}

// Invalidate drops a site's cached nameId.
func (tr *TableRegistry) Invalidate(siteID string) {
	tr.cache.Remove(siteID)
}

// PhysicalTableName renders the backend's dynamic table identifier.
func PhysicalTableName(siteNameID, modelName string) string {
	return tablePrefix + "____" + siteNameID + "____" + modelName
}

// IsDynamicTable reports whether a class name is a dynamic content
// table rather than one of the fixed entity classes.
func IsDynamicTable(class string) bool {
	return strings.HasPrefix(class, tablePrefix+"____")
}
