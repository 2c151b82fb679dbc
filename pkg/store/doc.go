// Package store defines the document-store abstraction the cloud logic
// runs against. The backing service is an external BaaS; this package
// models only the surface the engines need: schemaless objects with an
// attached ACL, and queries with equality, negation and containment
// filters.
//
// Implementations:
//   - memstore: in-memory, for tests and local development
//   - postgres: JSONB documents in a single table
//
// Stores operate with elevated privileges. Rights filtering is the
// caller's responsibility; engines load records and then apply the
// rights predicate explicitly before mutating anything.
package store
