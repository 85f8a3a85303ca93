// Package config loads and validates traderd configuration.
//
// Config is loaded from YAML with ${VAR} environment expansion, then
// defaults are applied, then the result is validated:
//
//	cfg, err := config.LoadAndValidate("configs/traderd.yaml")
package config
