// Package config defines the sessiond daemon configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation, reported as domain.ErrConfiguration
//   - sanitize.go: masking of secrets for display
//   - convert.go: mapping onto the handler and cluster configs
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and SESSIOND_ environment variables.
package config
