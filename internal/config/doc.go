// Package config loads docgen settings with viper. Values come from
// built-in defaults, an optional YAML file and DOCGEN_ environment
// variables, in that order of precedence, and are checked with validator
// struct tags before any component is built.
package config
