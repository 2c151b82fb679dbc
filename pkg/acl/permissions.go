package acl

import "encoding/json"

// Verb is a class-level permission verb enforced by the document store
// per dynamic content table.
type Verb string

const (
	VerbGet      Verb = "get"
	VerbFind     Verb = "find"
	VerbCreate   Verb = "create"
	VerbUpdate   Verb = "update"
	VerbDelete   Verb = "delete"
	VerbAddField Verb = "addField"
)

// Verbs lists every class-level permission verb in serialization order.
func Verbs() []Verb {
	return []Verb{VerbGet, VerbFind, VerbCreate, VerbUpdate, VerbDelete, VerbAddField}
}

// PermissionSet is a typed class-level permission map: one allow-list
// of user ids per verb. The zero value is not usable; construct with
// NewPermissionSet.
type PermissionSet struct {
	buckets map[Verb]map[string]bool
}

// NewPermissionSet creates an empty permission set with all six verb
// buckets present, matching what the store expects on table creation.
func NewPermissionSet() *PermissionSet {
	ps := &PermissionSet{buckets: make(map[Verb]map[string]bool, len(Verbs()))}
	for _, v := range Verbs() {
		ps.buckets[v] = make(map[string]bool)
	}
	return ps
}

// Grant adds a user to a verb's allow-list.
func (ps *PermissionSet) Grant(v Verb, userID string) {
	if ps.buckets[v] == nil {
		ps.buckets[v] = make(map[string]bool)
	}
	ps.buckets[v][userID] = true
}

// Revoke removes a user from a verb's allow-list.
func (ps *PermissionSet) Revoke(v Verb, userID string) {
	delete(ps.buckets[v], userID)
}

// Allowed reports whether a user is on a verb's allow-list.
func (ps *PermissionSet) Allowed(v Verb, userID string) bool {
	return ps.buckets[v][userID]
}

// Users returns the ids allowed for a verb.
func (ps *PermissionSet) Users(v Verb) []string {
	ids := make([]string, 0, len(ps.buckets[v]))
	for id := range ps.buckets[v] {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy. Clone of nil is a fresh empty set.
func (ps *PermissionSet) Clone() *PermissionSet {
	c := NewPermissionSet()
	if ps == nil {
		return c
	}
	for v, bucket := range ps.buckets {
		for id := range bucket {
			c.Grant(v, id)
		}
	}
	return c
}

// MarshalJSON serializes to the verb -> user id -> true wire shape,
// always emitting every verb bucket.
func (ps *PermissionSet) MarshalJSON() ([]byte, error) {
	out := make(map[Verb]map[string]bool, len(Verbs()))
	for _, v := range Verbs() {
		bucket := ps.buckets[v]
		if bucket == nil {
			bucket = map[string]bool{}
		}
		out[v] = bucket
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the verb -> user id -> true wire shape. Missing
// verbs get empty buckets.
func (ps *PermissionSet) UnmarshalJSON(data []byte) error {
	raw := make(map[Verb]map[string]bool)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*ps = *NewPermissionSet()
	for v, bucket := range raw {
		for id, ok := range bucket {
			if ok {
				ps.Grant(v, id)
			}
		}
	}
	return nil
}
