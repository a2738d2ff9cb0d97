// Package config loads YAML configuration with ${VAR} environment
// expansion, applies defaults, and validates required fields.
package config
