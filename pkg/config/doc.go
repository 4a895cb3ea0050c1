// Package config loads tenant manager configuration.
//
// # Overview
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file named by TENANT_MANAGER_CONFIG_FILE, and TENANT_MANAGER_*
// environment variables. Later layers win, so a deployment can check in a
// YAML baseline and still override single values per environment:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - cmd/tenant-manager: the only consumer; packages take typed config
//     structs, never this package
package config
