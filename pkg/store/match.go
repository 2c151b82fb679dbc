package store

// Matches evaluates conjunctive filters against an object. Shared by
// the in-memory store and by implementations that cannot push a filter
// down to their backend.
func Matches(obj *Object, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(obj, f) {
			return false
		}
	}
	return true
}

func matchOne(obj *Object, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return valueEquals(obj, f.Field, f.Value)
	case OpNotEqual:
		return !valueEquals(obj, f.Field, f.Value)
	case OpContainedIn:
		for _, v := range f.Values {
			if valueEquals(obj, f.Field, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// valueEquals compares a stored field against a filter value. Pointer
// fields compare by referenced id so callers can filter on plain ids.
func valueEquals(obj *Object, field string, want any) bool {
	if p := obj.Pointer(field); p != nil {
		id, ok := want.(string)
		return ok && p.ID == id
	}
	return obj.Get(field) == want
}
