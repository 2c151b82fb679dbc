// Package config loads application configuration from CLOUDCODE_-
// prefixed environment variables and validates cross-setting
// constraints before startup.
package config
