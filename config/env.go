package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of the environment variables ApplyEnv reads.
const EnvPrefix = "FIFOSIM_"

type envBinding struct {
	key   string
	apply func(c *Config, value string) error
}

func intBinding(key string, field func(c *Config) *int) envBinding {
	return envBinding{key: key, apply: func(c *Config, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		*field(c) = v

		return nil
	}}
}

func int64Binding(key string, field func(c *Config) *int64) envBinding {
	return envBinding{key: key, apply: func(c *Config, value string) error {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}

		*field(c) = v

		return nil
	}}
}

func boolBinding(key string, field func(c *Config) *bool) envBinding {
	return envBinding{key: key, apply: func(c *Config, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		*field(c) = v

		return nil
	}}
}

var envBindings = []envBinding{
	intBinding("CAPACITY", func(c *Config) *int { return &c.Capacity }),
	intBinding("BUDGET", func(c *Config) *int { return &c.Budget }),
	intBinding("BURST_MIN", func(c *Config) *int { return &c.BurstMin }),
	intBinding("BURST_MAX", func(c *Config) *int { return &c.BurstMax }),
	{key: "SEED", apply: func(c *Config, value string) error {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}

		c.Seed = v

		return nil
	}},
	int64Binding("PRODUCER_INTERVAL_NS",
		func(c *Config) *int64 { return &c.ProducerIntervalNS }),
	int64Binding("CONSUMER_INTERVAL_NS",
		func(c *Config) *int64 { return &c.ConsumerIntervalNS }),
	int64Binding("POLL_INTERVAL_NS",
		func(c *Config) *int64 { return &c.PollIntervalNS }),
	boolBinding("STOP_ON_DRAIN", func(c *Config) *bool { return &c.StopOnDrain }),
	boolBinding("CONTINUOUS_PAYLOAD",
		func(c *Config) *bool { return &c.ContinuousPayload }),
}

// ApplyEnv overrides fields from FIFOSIM_* variables. If dotenvPath is not
// empty, the variables in that file are read first and the process
// environment takes precedence over them.
func (c *Config) ApplyEnv(dotenvPath string) error {
	vars := map[string]string{}

	if dotenvPath != "" {
		fileVars, err := godotenv.Read(dotenvPath)
		if err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}

		vars = fileVars
	}

	for _, b := range envBindings {
		key := EnvPrefix + b.key

		value, ok := os.LookupEnv(key)
		if !ok {
			value, ok = vars[key]
		}

		if !ok {
			continue
		}

		if err := b.apply(c, value); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, value, err)
		}
	}

	return nil
}
