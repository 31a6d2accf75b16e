package realtime

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config tunes session lifecycles
type Config struct {
	MaxReconnects int           `envconfig:"MAX_RECONNECTS" default:"3"`
	ReconnectBase time.Duration `envconfig:"RECONNECT_BASE" default:"1s"`
	ReconnectMax  time.Duration `envconfig:"RECONNECT_MAX" default:"10s"`
	DialTimeout   time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	SendTimeout   time.Duration `envconfig:"SEND_TIMEOUT" default:"5s"`
	DrainTimeout  time.Duration `envconfig:"DRAIN_TIMEOUT" default:"5s"`
	EventBuffer   int           `envconfig:"EVENT_BUFFER" default:"64"`
	TombstoneTTL  time.Duration `envconfig:"TOMBSTONE_TTL" default:"10m"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"30s"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxReconnects: 3,
		ReconnectBase: time.Second,
		ReconnectMax:  10 * time.Second,
		DialTimeout:   10 * time.Second,
		SendTimeout:   5 * time.Second,
		DrainTimeout:  5 * time.Second,
		EventBuffer:   64,
		TombstoneTTL:  10 * time.Minute,
		LockTTL:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxReconnects < 0 {
		c.MaxReconnects = 0
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = def.ReconnectBase
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = c.ReconnectBase
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = def.TombstoneTTL
	}
	if c.LockTTL <= 0 {
		c.LockTTL = def.LockTTL
	}
	return c
}

// reconnectBackOff doubles from ReconnectBase up to ReconnectMax and
// stops after MaxReconnects attempts
func (c Config) reconnectBackOff(ctx context.Context) backoff.BackOff {
	if c.MaxReconnects == 0 {
		// WithMaxRetries treats zero as unlimited
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.ReconnectBase
	exp.MaxInterval = c.ReconnectMax
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.MaxReconnects)), ctx)
}
