// Package config loads and validates the T-Deck-Pro hub server configuration.
//
// Configuration comes from three layers, each overriding the previous:
//
//  1. Hardcoded defaults (see defaultConfig)
//  2. A YAML file (configs/config.yaml by default)
//  3. TDECKPRO_* environment variables for deployment-specific secrets
//
// The loaded Config is passed by value to infrastructure constructors so
// packages depend only on the sections they need (database.Config,
// mqtt via config.MQTTConfig, and so on).
package config
