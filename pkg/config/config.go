// Package config declares the tunables shared by the client and
// server runtime loops. Parsing configuration from a file or flags is
// out of scope here; callers build a Config literal (or decode one
// with whatever library fits their deployment) and call WithDefaults
// to backfill anything left zero-valued.
package config

import (
	"time"

	"dario.cat/mergo"
)

// LinkConditionConfig describes a simulated unreliable network for
// local testing: extra latency, jitter, and synthetic packet loss.
// Nothing in this module applies it to packets; it is carried in
// Config for callers.
type LinkConditionConfig struct {
	IncomingLatency        time.Duration
	IncomingJitter         time.Duration
	IncomingLossPercentage float64
}

// GoodCondition models a fast, reliable local-area link.
var GoodCondition = LinkConditionConfig{
	IncomingLatency: 10 * time.Millisecond,
	IncomingJitter:  1 * time.Millisecond,
}

// PoorCondition models a noisy wide-area link, useful for exercising
// drop reconciliation and replay during manual testing.
var PoorCondition = LinkConditionConfig{
	IncomingLatency:        150 * time.Millisecond,
	IncomingJitter:         40 * time.Millisecond,
	IncomingLossPercentage: 0.1,
}

// SocketConfig controls the transport the connection runs over.
type SocketConfig struct {
	// Connectionless selects a connectionless (UDP-style) socket as
	// opposed to a connection-oriented one; the replication protocol
	// above it performs its own handshake and ordering regardless.
	Connectionless bool
}

// Config holds every tunable of the replication runtime.
type Config struct {
	TickInterval                 time.Duration
	HeartbeatInterval            time.Duration
	PingInterval                 time.Duration
	RTTSampleSize                int
	DisconnectionTimeoutDuration time.Duration
	SendHandshakeInterval        time.Duration
	LinkCondition                *LinkConditionConfig
	Socket                       SocketConfig
	// Multithread is carried for callers; nothing in this module reads
	// it. The entity diff handler guards its table with a mutex
	// whichever way it is set.
	Multithread bool
}

// Default returns the baseline configuration every Config is merged
// against.
func Default() Config {
	return Config{
		TickInterval:                 50 * time.Millisecond,
		HeartbeatInterval:            2 * time.Second,
		PingInterval:                 1 * time.Second,
		RTTSampleSize:                16,
		DisconnectionTimeoutDuration: 10 * time.Second,
		SendHandshakeInterval:        250 * time.Millisecond,
		Socket:                       SocketConfig{Connectionless: true},
	}
}

// WithDefaults merges c over Default(), so any field c left at its
// zero value falls back to the default, while an explicitly-set field
// (including a zero one the caller actually wants) is impossible to
// express with a value-type merge and should instead be treated as
// "use the default" -- callers who truly need a zero duration should
// set it to a negative value and clamp it themselves.
func (c Config) WithDefaults() (Config, error) {
	merged := Default()
	if err := mergo.Merge(&merged, c, mergo.WithOverride); err != nil {
		return Config{}, err
	}
	return merged, nil
}
