// Package schema talks to the backend's schema administration endpoint
// for dynamic content tables: field definitions and class-level
// permission maps. Reads are defensive probes that swallow failures;
// writes use create-then-update semantics because the endpoint has no
// native upsert. An optional Redis cache sits in front of reads.
package schema
