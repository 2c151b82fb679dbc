// Package hooks is the trigger surface of the platform: the before- and
// after-save/delete handlers the API layer dispatches on entity
// mutations, plus the callable cloud functions. Hooks enforce actor
// rights, seed ACLs and table permissions on first save, apply pay-plan
// limits and hand off to the cascade and propagation engines.
//
// Every handler is skipped when the request runs with elevated
// privileges; the engines themselves always read and write elevated.
package hooks
