// Package billing resolves a user's pay plan and enforces the limits
// it carries. Only the site-count limit is enforced cloud-side; the
// rest of the plan is dashboard material.
package billing

import (
	"context"
	"fmt"

	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

// PayPlan is a user's subscription plan.
type PayPlan struct {
	ID        string
	Name      string
	SiteLimit int
}

// QuotaExceededError reports a plan limit that is already met.
type QuotaExceededError struct {
	Resource string
	Current  int
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d used", e.Resource, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	_, ok := err.(*QuotaExceededError)
	return ok
}

// Service looks up plans and enforces their limits.
type Service struct {
	repo *tenant.Repo
}

// NewService creates a billing service.
func NewService(repo *tenant.Repo) *Service {
	return &Service{repo: repo}
}

// PayPlanFor resolves a user's plan. Users without a plan pointer get
// (nil, nil): no plan means no enforced limits.
func (s *Service) PayPlanFor(ctx context.Context, user tenant.User) (*PayPlan, error) {
	ref := user.Pointer(tenant.FieldPayPlan)
	if ref == nil {
		return nil, nil
	}

	obj, err := s.repo.Store().Get(ctx, tenant.ClassPayPlan, ref.ID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pay plan %s: %w", ref.ID, err)
	}

	return &PayPlan{
		ID:        obj.ID,
		Name:      obj.String("name"),
		SiteLimit: intField(obj, tenant.FieldLimitSites),
	}, nil
}

// intField reads a numeric field that may arrive as an int in memory
// or as a float64 off a JSON decode.
func intField(obj *store.Object, field string) int {
	switch v := obj.Get(field).(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// CheckSiteQuota rejects a new site when the user's plan limit is
// already met. A missing plan or a non-positive limit is unlimited.
func (s *Service) CheckSiteQuota(ctx context.Context, user tenant.User) error {
	plan, err := s.PayPlanFor(ctx, user)
	if err != nil {
		return err
	}
	if plan == nil || plan.SiteLimit <= 0 {
		return nil
	}

	count, err := s.repo.SiteCountByOwner(ctx, user.ID)
	if err != nil {
		return err
	}
	if count >= plan.SiteLimit {
		return &QuotaExceededError{Resource: "sites", Current: count, Limit: plan.SiteLimit}
	}
	return nil
}
