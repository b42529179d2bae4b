// Package config provides environment-variable lookup and struct-tag based
// configuration binding shared by every other package in this module.
package config

import (
	"context"
	"io"
	"os"

	envconfig "github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// LookupEnv retrieves the value of the environment variable named by key.
// If the variable is present in the environment the value is returned.
// Otherwise, the returned value is defaultValue.
func LookupEnv(key, defaultValue string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return v
}

// Load populates i (a pointer to a struct tagged with `env:"..."`) from the
// process environment via envconfig.Process. It's the mechanism behind
// processor.Settings (queue size, max DOP); the lock's lease, renew and
// backoff parameters are set through lock.Option values, not through Load.
func Load(i interface{}) error {
	return envconfig.Process(context.Background(), i)
}

// FromYAML decodes a YAML document from r into i, then applies env var
// overrides on top via Load. This lets a deployment keep bootstrap
// settings (bucket name, stream prefix, ...) in a mounted config file
// while still allowing env vars to win, matching the layering order of
// most twelve-factor deployments.
func FromYAML(r io.Reader, i interface{}) error {
	if err := yaml.NewDecoder(r).Decode(i); err != nil && err != io.EOF {
		return err
	}
	return Load(i)
}
