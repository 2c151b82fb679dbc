// Package acl implements the access-control primitives shared by every
// tenant-owned entity: per-object ACL descriptors, typed class-level
// permission sets for dynamic content tables, and the rights predicate
// that gates all mutating operations.
//
// The ACL wire shape matches the backing document store:
//
//	{"u123": {"read": true, "write": true}, "*": {"read": true}}
//
// Class-level permissions are keyed by verb and carry an allow-list of
// user ids per verb:
//
//	{"get": {"u123": true}, "find": {"u123": true}, "create": {}, ...}
package acl
