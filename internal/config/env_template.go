package config

import _ "embed"

// defaultEnvTemplate holds the embedded configuration template.
//
//go:embed templates/provision.env
var defaultEnvTemplate string

// DefaultEnvTemplate returns the embedded configuration template used to
// bootstrap new installations.
func DefaultEnvTemplate() string {
	return defaultEnvTemplate
}
