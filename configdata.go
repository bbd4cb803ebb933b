// Package cadence holds assets embedded into the player binary.
package cadence

import _ "embed"

// DefaultConfigTOML is config.default.toml, written to the data directory on
// first run so the user starts from a commented file.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
