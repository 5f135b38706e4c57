// Package config loads cellar configuration from YAML files, environment
// variables and CLI flags, and validates it with go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s), merged left-to-right
//  3. Environment variables (CELLAR_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx = config.WithContext(ctx, cfg)
//
// # Environment Variables
//
// Config keys map to environment variables with the CELLAR_ prefix:
//   - server.port → CELLAR_SERVER_PORT
//   - storage.secret → CELLAR_STORAGE_SECRET
//   - database.dsn → CELLAR_DATABASE_DSN
//
// # Models
//
// The models section declares one schema per namespace. Field names are
// case-insensitive because viper lowercases keys:
//
//	models:
//	  files:
//	    owner:
//	      type: text
//	      trim: true
//	    tags:
//	      type: json
//
// Every model is extended with the file fields (name, dir, type).
//
// # Secret
//
// storage.secret keys blob placement. It has no default, and cellar never
// writes it to disk or to logs. Prefer CELLAR_STORAGE_SECRET over putting it
// in a config file.
package config
