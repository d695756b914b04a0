// Package config loads the recorder configuration from a YAML file, a .env
// file and RECORDER_* environment variables, and validates it.
package config
