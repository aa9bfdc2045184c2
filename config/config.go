// Package config holds the run parameters of the FIFO model and loads them
// from JSON files and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/fifosim/perfmodel"
	"github.com/sarchlab/fifosim/sim/timing"
)

// Capacity bounds applied by Clamp.
const (
	MinCapacity = 1
	MaxCapacity = 100000
)

// Config holds the parameters of one run. Intervals are in nanoseconds.
type Config struct {
	// Capacity is the number of items the FIFO can hold.
	Capacity int `json:"capacity"`

	// Budget is the total number of items the producer writes.
	Budget int `json:"budget"`

	// BurstMin and BurstMax bound the length of a producer burst.
	BurstMin int `json:"burst_min"`
	BurstMax int `json:"burst_max"`

	// Seed seeds the burst length generator.
	Seed uint64 `json:"seed"`

	ProducerIntervalNS int64 `json:"producer_interval_ns"`
	ConsumerIntervalNS int64 `json:"consumer_interval_ns"`
	PollIntervalNS     int64 `json:"poll_interval_ns"`

	// StopOnDrain ends the run as soon as the model drains.
	StopOnDrain bool `json:"stop_on_drain"`

	// ContinuousPayload numbers items with one sequence across bursts.
	ContinuousPayload bool `json:"continuous_payload"`
}

// Default returns the default parameters.
func Default() *Config {
	return &Config{
		Capacity:           10,
		Budget:             10000,
		BurstMin:           1,
		BurstMax:           19,
		Seed:               1,
		ProducerIntervalNS: 1000,
		ConsumerIntervalNS: 100,
		PollIntervalNS:     100,
		StopOnDrain:        true,
	}
}

// LoadFile loads a JSON config. Fields missing from the file keep their
// default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// SaveFile writes the config as indented JSON.
func (c *Config) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Clamp brings the capacity into [MinCapacity, MaxCapacity].
func (c *Config) Clamp() {
	c.Capacity = min(max(c.Capacity, MinCapacity), MaxCapacity)
}

// Validate checks the parameters without changing them.
func (c *Config) Validate() error {
	switch {
	case c.Capacity < MinCapacity || c.Capacity > MaxCapacity:
		return &timing.ConfigError{
			Field:  "capacity",
			Value:  c.Capacity,
			Reason: fmt.Sprintf("must be in [%d, %d]", MinCapacity, MaxCapacity),
		}
	case c.Budget < 1:
		return &timing.ConfigError{Field: "budget", Value: c.Budget, Reason: "must be at least 1"}
	case c.BurstMin < 1:
		return &timing.ConfigError{Field: "burst_min", Value: c.BurstMin, Reason: "must be at least 1"}
	case c.BurstMax < c.BurstMin:
		return &timing.ConfigError{Field: "burst_max", Value: c.BurstMax, Reason: "must not be below burst_min"}
	case c.ProducerIntervalNS < 0:
		return &timing.ConfigError{Field: "producer_interval_ns", Value: c.ProducerIntervalNS, Reason: "must not be negative"}
	case c.ConsumerIntervalNS < 0:
		return &timing.ConfigError{Field: "consumer_interval_ns", Value: c.ConsumerIntervalNS, Reason: "must not be negative"}
	case c.PollIntervalNS <= 0:
		return &timing.ConfigError{Field: "poll_interval_ns", Value: c.PollIntervalNS, Reason: "must be positive"}
	}

	return nil
}

// Builder returns a model builder set up with the parameters.
func (c *Config) Builder() perfmodel.Builder {
	return perfmodel.MakeBuilder().
		WithCapacity(c.Capacity).
		WithBudget(c.Budget).
		WithBurstRange(c.BurstMin, c.BurstMax).
		WithSeed(c.Seed).
		WithProducerInterval(timing.VTime(c.ProducerIntervalNS) * timing.NS).
		WithConsumerInterval(timing.VTime(c.ConsumerIntervalNS) * timing.NS).
		WithPollInterval(timing.VTime(c.PollIntervalNS) * timing.NS).
		WithStopOnDrain(c.StopOnDrain).
		WithContinuousPayload(c.ContinuousPayload)
}
