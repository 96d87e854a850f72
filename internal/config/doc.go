// Package config provides configuration management for the Droppy
// entitlement daemon.
//
// Configuration is loaded from environment variables with the DROPPY prefix,
// merged over an optional config.yaml file, with environment taking
// precedence. Paths to the redundant local stores are resolved against the
// executable directory so they remain stable regardless of where the host
// launches the daemon from.
//
// The Product section deserves attention: when neither a product ID nor a
// permalink is configured, entitlement enforcement is switched off entirely
// and the engine reports full access. This is the development and
// self-build mode, not an error state.
package config
