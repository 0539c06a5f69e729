package weave

import (
	"fmt"
	"time"
)

// Clock abstracts time.Now so tests can inject a deterministic clock,
// the same package-level time-seam pattern catrate.Limiter uses for its
// own tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds the resolved, validated configuration for a Scheduler /
// InvocationDriver. Construct via NewConfig with ConfigOption values;
// the zero value is not valid.
type Config struct { //nolint:govet // betteralign:ignore
	// HangingDetectionThreshold is the per-CLID visit count that
	// triggers first-pass spin detection.
	HangingDetectionThreshold int

	// CheckObstructionFreedom, when true, makes any lock/wait/spin in a
	// non-blocking actor fatal.
	CheckObstructionFreedom bool

	// LivelockEventsThreshold is the global total-events ceiling before
	// declaring deadlock instead of a measured spin cycle.
	LivelockEventsThreshold int

	// EliminateLocalObjects enables the local-object tracker
	// optimization (C5).
	EliminateLocalObjects bool

	// CollectStateRepresentation records the option's setting. No
	// engine component reads it: the scheduler never records StateRepr
	// trace points.
	CollectStateRepresentation bool

	// Timeout holds the configured invocation wall-clock budget; zero
	// means none. NewConfig validates it, but InvocationDriver does not
	// read it, so no invocation is cut short by it.
	Timeout time.Duration

	// Logger receives structured diagnostic events. Defaults to the
	// package-level logger (see SetLogger) if nil.
	Logger *EngineLogger

	// Clock is the configured time source. Defaults to the real clock.
	// No engine component reads it: the diagnostic rate limiter keeps
	// its own time.
	Clock Clock
}

// ConfigOption configures a Config constructed via NewConfig, following
// the same functional-options pattern as eventloop's LoopOption.
type ConfigOption func(*Config) error

// WithHangingDetectionThreshold sets the per-CLID visit count that
// triggers first-pass spin detection. Must be a positive integer.
func WithHangingDetectionThreshold(n int) ConfigOption {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: hangingDetectionThreshold must be positive, got %d", ErrInvalidConfig, n)
		}
		c.HangingDetectionThreshold = n
		return nil
	}
}

// WithObstructionFreedomCheck enables or disables obstruction-freedom
// checking.
func WithObstructionFreedomCheck(enabled bool) ConfigOption {
	return func(c *Config) error {
		c.CheckObstructionFreedom = enabled
		return nil
	}
}

// WithLivelockEventsThreshold sets the global total-events ceiling
// before declaring deadlock. Must be strictly greater than the
// configured hanging-detection threshold.
func WithLivelockEventsThreshold(n int) ConfigOption {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: livelockEventsThreshold must be positive, got %d", ErrInvalidConfig, n)
		}
		c.LivelockEventsThreshold = n
		return nil
	}
}

// WithLocalObjectElimination enables the local-object tracker
// optimization.
func WithLocalObjectElimination(enabled bool) ConfigOption {
	return func(c *Config) error {
		c.EliminateLocalObjects = enabled
		return nil
	}
}

// WithStateRepresentation enables capturing state snapshots in the
// trace.
func WithStateRepresentation(enabled bool) ConfigOption {
	return func(c *Config) error {
		c.CollectStateRepresentation = enabled
		return nil
	}
}

// WithTimeout sets the invocation wall-clock budget.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("%w: timeout must be non-negative, got %s", ErrInvalidConfig, d)
		}
		c.Timeout = d
		return nil
	}
}

// WithLogger sets the structured logger used by this configuration's
// Scheduler/InvocationDriver, overriding the package-level default.
func WithLogger(l *EngineLogger) ConfigOption {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithClock overrides the default real-time Clock stored in
// Config.Clock.
func WithClock(clock Clock) ConfigOption {
	return func(c *Config) error {
		if clock == nil {
			return fmt.Errorf("%w: clock must not be nil", ErrInvalidConfig)
		}
		c.Clock = clock
		return nil
	}
}

// defaultHangingDetectionThreshold is the visit count at which a
// first-pass spin is suspected absent an explicit configuration.
const defaultHangingDetectionThreshold = 50

// defaultLivelockMultiplier sizes the default livelock ceiling relative
// to the hanging-detection threshold, satisfying the invariant that it
// must be strictly greater.
const defaultLivelockMultiplier = 10_000

// NewConfig builds a validated Config from the given options. It
// refuses configurations where LivelockEventsThreshold is not strictly
// greater than HangingDetectionThreshold, per spec.md §8's boundary
// property.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		HangingDetectionThreshold: defaultHangingDetectionThreshold,
		Clock:                     realClock{},
	}
	c.LivelockEventsThreshold = c.HangingDetectionThreshold * defaultLivelockMultiplier

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Logger == nil {
		c.Logger = defaultEngineLogger()
	}

	if c.LivelockEventsThreshold <= c.HangingDetectionThreshold {
		return nil, fmt.Errorf(
			"%w: livelockEventsThreshold (%d) must be strictly greater than hangingDetectionThreshold (%d)",
			ErrInvalidConfig, c.LivelockEventsThreshold, c.HangingDetectionThreshold,
		)
	}

	return c, nil
}
