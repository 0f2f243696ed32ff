// Package config provides configuration management for dagent.
//
// Service configuration is loaded from environment variables using the env
// package; all values have sensible defaults for development use. Agent
// declarations are read from the YAML file named by DAGENT_AGENTS_FILE.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	specs, err := config.LoadAgents(cfg.AgentsFile)
package config
