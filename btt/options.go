package btt

import (
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
)

// config collects the values Option funcs mutate before New validates and
// freezes them into an Instance.
type config struct {
	parentUUID uuid.UUID
	maxLane    int
	log        logger.Logger
}

func defaultConfig() config {
	return config{
		parentUUID: uuid.Nil,
		maxLane:    0,
	}
}

// Option configures an Instance at construction time.
type Option func(*config)

// WithParentUUID stamps the namespace's arenas with id, so a reader can
// confirm it has opened the namespace it expects. The default is uuid.Nil.
func WithParentUUID(id uuid.UUID) Option {
	return func(c *config) {
		c.parentUUID = id
	}
}

// WithMaxLane caps the number of concurrent lanes New will report via
// Instance.NLane, regardless of how many free blocks nfree provides. A
// value of 0 (the default) leaves the lane count uncapped, i.e. equal to
// nfree.
func WithMaxLane(n int) Option {
	return func(c *config) {
		c.maxLane = n
	}
}

// WithLogger attaches a logger.Logger that the arenas use to report being
// marked with ERROR_MASK. Without this option, that message is not logged.
// The trace lines for map lock/unlock and flog commits go through the
// package-level logger.Sugar whether or not this option is given.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}
