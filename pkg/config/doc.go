// Package config holds the process-level settings of a mockfleet run.
//
// Settings are resolved in three layers, later layers winning:
//
//  1. Default() values.
//  2. An optional YAML file. ${VAR} and ${VAR:-default} references are
//     expanded before parsing.
//  3. MOCKFLEET_* environment variables (see ApplyEnv).
//
// CLI flags are applied on top by the caller.
//
//	cfg, err := config.Load("mockfleet.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
