// Package config loads engine settings from the environment.
//
// Without any variables set the engine runs with an in-memory schema store,
// no Redis and mock-only transforms. Load fails when a selected backend is
// missing its connection settings, e.g. SCHEMA_STORE=postgres without
// POSTGRES_DSN.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	srv := http.NewServer(http.Config{Port: cfg.HTTPPort})
package config
