// Package config loads the cell configuration from TOML and flags.
package config
