// Package cascade implements the cascading-lifecycle engine: deleting
// a content item, a model or a whole site removes every dependent
// record (drafts, media pointers, fields, content rows, dynamic
// tables, cross-model reference validations and collaborations) in
// dependency order.
//
// The backing store has no multi-document transactions, so the engine
// substitutes careful ordering and explicit rights checks. A failed
// rights check on the entry entity aborts the whole operation before
// anything is touched; failures of individual dependents are isolated
// so siblings still get cleaned up. There is no rollback: work done
// before an abort stays done.
package cascade
