// Package config loads service configuration from environment variables.
//
// Every value has a default suitable for local development: in-memory
// storage and events, no capability manifest and a per-tenant rate limit of
// 10 requests per second. Redis settings are only validated when a backend
// selects redis.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
