// Package api exposes the hook and cloud-function surface over HTTP.
// The data layer calls POST /1/hooks/{class}/{trigger} around entity
// mutations with a request envelope carrying the acting user, the
// master flag and the object; dashboard clients call the functions
// under /1/functions. Trigger responses echo the object back so ACL
// mutations made by the hooks are persisted by the caller.
package api
