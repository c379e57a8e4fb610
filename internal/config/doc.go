// Package config provides configuration loading and validation for the speechflow service.
// A YAML file is decoded over Default(), selected fields can be overridden from the
// environment (optionally seeded from .env files), and every section validates itself.
package config
