// Package propagation recomputes row-level ACLs and class-level
// permissions after a collaboration change. A single collaboration
// save or delete fans out to the site record, every sibling
// collaboration, every media item, every model (including its dynamic
// table's permission map) and every model field of the site.
//
// Fan-out writes are pushed through a bounded background pool and are
// not awaited: ACL state is eventually consistent after a collaboration
// change returns, and individual write failures are logged and counted
// but never surfaced. Reads are joined; a read failure aborts the run.
package propagation
