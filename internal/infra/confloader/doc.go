// Package confloader loads sessiond configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Explicit overrides (LoadMap)
//  2. Environment variables (SESSIOND_ prefix)
//  3. Configuration file (YAML)
//  4. Defaults already present in the target struct
//
// Environment variable names use a double underscore between sections and
// keep single underscores inside keys:
//
//	SESSIOND_SESSION__MAX_PER_USER=5     -> session.max_per_user
//	SESSIOND_STORAGE__REDIS__ADDR=r:6379 -> storage.redis.addr
//
// The Watcher reports writes to the configuration file so the daemon can
// re-apply the settings it allows to change at runtime.
package confloader
