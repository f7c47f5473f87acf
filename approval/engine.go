package approval

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE - Pure workflow logic over an injected policy set
// =============================================================================

// Engine matches rules, builds workflows and applies approval actions.
// It performs no I/O; persistence belongs to Service.
type Engine struct {
	policies          PolicySource
	clock             func() time.Time
	newID             func() string
	fallbackLevel     Level
	defaultEscalation int
	logger            *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator injects the id source for workflows and steps.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithFallbackLevel sets the single level used when no rule matches.
func WithFallbackLevel(l Level) Option {
	return func(e *Engine) {
		if l.Valid() {
			e.fallbackLevel = l
		}
	}
}

// WithDefaultEscalationDays sets the step window used when no matched rule
// declares one.
func WithDefaultEscalationDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.defaultEscalation = days
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine reading policies from source.
func NewEngine(source PolicySource, opts ...Option) *Engine {
	e := &Engine{
		policies:          source,
		clock:             time.Now,
		newID:             uuid.NewString,
		fallbackLevel:     LevelHR,
		defaultEscalation: DefaultEscalationDays,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time { return e.clock() }

func (e *Engine) dueAfter(from time.Time, days int) *time.Time {
	if days <= 0 {
		days = e.defaultEscalation
	}
	due := from.AddDate(0, 0, days)
	return &due
}
