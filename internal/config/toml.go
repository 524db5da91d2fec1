package config

import (
	gotoml "github.com/pelletier/go-toml/v2"
)

// EncodeTOML renders the configuration as a TOML document.
func (c *Config) EncodeTOML() ([]byte, error) {
	return gotoml.Marshal(c)
}
