// Package async provides the controlled replacement for detached
// writes. The ACL propagation and cascade engines deliberately do not
// wait for many of their fan-out writes; instead of bare goroutines
// those writes go through a bounded worker pool with panic recovery,
// per-task timeouts and observable failures. Tests and shutdown paths
// use Drain to wait for everything in flight.
package async
