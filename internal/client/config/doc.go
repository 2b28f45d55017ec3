// Package config loads the CLI configuration.
//
// Sources, lowest precedence first: defaults, a JSON or YAML file given
// with -c/-config, the environment (API_BASE_URL or NEXT_PUBLIC_BASE_URL,
// also read from a .env file) and the -a/-t flags.
package config
