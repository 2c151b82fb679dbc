package tenant

import (
	"github.com/sitewright/cloudcode/pkg/store"
)

// Document-store classes for the fixed (non-dynamic) entities.
const (
	ClassSite          = "Site"
	ClassCollaboration = "Collaboration"
	ClassModel         = "Model"
	ClassModelField    = "ModelField"
	ClassMediaItem     = "MediaItem"
	ClassUser          = "User"
	ClassPayPlan       = "PayPlan"
)

// Well-known field names.
const (
	FieldSite        = "site"
	FieldUser        = "user"
	FieldOwner       = "owner"
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldRole        = "role"
	FieldNameID      = "nameId"
	FieldTableName   = "tableName"
	FieldModel       = "model"
	FieldType        = "type"
	FieldValidations = "validations"
	FieldPayPlan     = "payPlan"
	FieldLimitSites  = "limitSites"

	// FieldDraftOwner is the back-reference a draft content row keeps
	// to its published counterpart.
	FieldDraftOwner = "t__owner"
)

// Role is a collaborator's role on a site. Any value other than the
// named constants behaves as an implicit read-only viewer.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

// CanWrite reports whether the role carries content write access.
func (r Role) CanWrite() bool { return r == RoleAdmin || r == RoleEditor }

// IsAdmin reports whether the role is the administrative one.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Site is the tenant root.
type Site struct{ *store.Object }

// OwnerID returns the owning user's id.
func (s Site) OwnerID() string {
	if p := s.Pointer(FieldOwner); p != nil {
		return p.ID
	}
	return ""
}

// NameID returns the stable short identifier used to derive dynamic
// table names.
func (s Site) NameID() string { return s.String(FieldNameID) }

// Collaboration binds a user to a site with a role. A collaboration
// with no user yet is a pending email invite.
type Collaboration struct{ *store.Object }

// SiteID returns the site reference.
func (c Collaboration) SiteID() string {
	if p := c.Pointer(FieldSite); p != nil {
		return p.ID
	}
	return ""
}

// UserID returns the collaborator's user id, or "" while pending.
func (c Collaboration) UserID() string {
	if p := c.Pointer(FieldUser); p != nil {
		return p.ID
	}
	return ""
}

// Email returns the pending-invite marker.
func (c Collaboration) Email() string { return c.String(FieldEmail) }

// Role returns the collaborator's role.
func (c Collaboration) Role() Role { return Role(c.String(FieldRole)) }

// AttachUser resolves a pending invite to a registered user and clears
// the email marker.
func (c Collaboration) AttachUser(userID string) {
	c.Set(FieldUser, store.Pointer{Class: ClassUser, ID: userID})
	c.Set(FieldEmail, "")
}

// Model is a tenant-defined content type.
type Model struct{ *store.Object }

// SiteID returns the site reference.
func (m Model) SiteID() string {
	if p := m.Pointer(FieldSite); p != nil {
		return p.ID
	}
	return ""
}

// NameID returns the model's stable identifier.
func (m Model) NameID() string { return m.String(FieldNameID) }

// TableName returns the physical dynamic table identifier.
func (m Model) TableName() string { return m.String(FieldTableName) }

// ModelField is a column definition of a model.
type ModelField struct{ *store.Object }

// ModelID returns the owning model reference.
func (f ModelField) ModelID() string {
	if p := f.Pointer(FieldModel); p != nil {
		return p.ID
	}
	return ""
}

// Type returns the field type ("Short Text", "Reference", ...).
func (f ModelField) Type() string { return f.String(FieldType) }

// MediaItem is a binary-asset record owned by a site.
type MediaItem struct{ *store.Object }

// SiteID returns the site reference.
func (m MediaItem) SiteID() string {
	if p := m.Pointer(FieldSite); p != nil {
		return p.ID
	}
	return ""
}

// User is a registered account.
type User struct{ *store.Object }

// Email returns the account email.
func (u User) Email() string { return u.String(FieldEmail) }

// Username returns the account username, kept in sync with the email.
func (u User) Username() string { return u.String(FieldUsername) }
