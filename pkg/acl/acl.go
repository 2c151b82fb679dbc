package acl

import (
	"encoding/json"
	"errors"
)

// PublicKey is the wildcard principal in a serialized ACL.
const PublicKey = "*"

// ErrAccessDenied is returned when an actor fails the rights check on
// an entity it is trying to modify.
var ErrAccessDenied = errors.New("access denied")

// Entry holds the read/write grants for one principal.
type Entry struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// ACL is a per-object access descriptor mapping user ids to grants,
// with an optional public entry under the wildcard key.
type ACL struct {
	entries map[string]Entry
}

// New creates an empty ACL.
func New() *ACL {
	return &ACL{entries: make(map[string]Entry)}
}

// OwnerOnly creates an ACL granting full access to a single owner.
func OwnerOnly(ownerID string) *ACL {
	a := New()
	a.SetRead(ownerID, true)
	a.SetWrite(ownerID, true)
	return a
}

// SetRead sets the read grant for a user.
func (a *ACL) SetRead(userID string, allowed bool) {
	e := a.entries[userID]
	e.Read = allowed
	a.set(userID, e)
}

// SetWrite sets the write grant for a user.
func (a *ACL) SetWrite(userID string, allowed bool) {
	e := a.entries[userID]
	e.Write = allowed
	a.set(userID, e)
}

// set stores the entry, dropping it entirely once both grants are false
// so revoked users do not linger in the serialized form.
func (a *ACL) set(userID string, e Entry) {
	if a.entries == nil {
		a.entries = make(map[string]Entry)
	}
	if !e.Read && !e.Write {
		delete(a.entries, userID)
		return
	}
	a.entries[userID] = e
}

// ReadAccess reports whether a user has an explicit read grant.
func (a *ACL) ReadAccess(userID string) bool {
	return a.entries[userID].Read
}

// WriteAccess reports whether a user has an explicit write grant.
func (a *ACL) WriteAccess(userID string) bool {
	return a.entries[userID].Write
}

// SetPublicRead sets the wildcard read grant.
func (a *ACL) SetPublicRead(allowed bool) {
	e := a.entries[PublicKey]
	e.Read = allowed
	a.set(PublicKey, e)
}

// SetPublicWrite sets the wildcard write grant.
func (a *ACL) SetPublicWrite(allowed bool) {
	e := a.entries[PublicKey]
	e.Write = allowed
	a.set(PublicKey, e)
}

// PublicRead reports whether public read is enabled.
func (a *ACL) PublicRead() bool {
	return a.entries[PublicKey].Read
}

// PublicWrite reports whether public write is enabled.
func (a *ACL) PublicWrite() bool {
	return a.entries[PublicKey].Write
}

// Principals returns the ids carrying at least one grant, wildcard
// included.
func (a *ACL) Principals() []string {
	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy. Clone of nil is nil.
func (a *ACL) Clone() *ACL {
	if a == nil {
		return nil
	}
	c := New()
	for id, e := range a.entries {
		c.entries[id] = e
	}
	return c
}

// MarshalJSON serializes to the document-store wire shape.
func (a *ACL) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.entries)
}

// UnmarshalJSON parses the document-store wire shape.
func (a *ACL) UnmarshalJSON(data []byte) error {
	a.entries = make(map[string]Entry)
	return json.Unmarshal(data, &a.entries)
}

// Protected is implemented by entities that carry an ACL. A nil ACL
// means the record predates access control and is open.
type Protected interface {
	ACL() *ACL
}

// CheckRights decides whether a user may operate on an entity. Entities
// without an ACL are open. Otherwise access requires the pair of
// explicit read and write grants, or the pair of public read and
// public write. Partial rights are insufficient.
func CheckRights(userID string, entity Protected) bool {
	a := entity.ACL()
	if a == nil {
		return true
	}

	read := a.ReadAccess(userID)
	write := a.WriteAccess(userID)

	return read && write || a.PublicRead() && a.PublicWrite()
}
