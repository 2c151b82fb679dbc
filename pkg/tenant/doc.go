// Package tenant models the entity hierarchy a site owns (models,
// model fields, media items and collaborations) as typed views over
// store objects, plus the query helpers and the dynamic table registry
// the engines run on.
package tenant
