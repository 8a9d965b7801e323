package store

import (
	"log/slog"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

type config struct {
	name     string
	storage  storage.Storage
	identity storage.Identity
	ids      storage.IDGenerator
	data     []record.Record
	mediate  bool
	tracking bool
	policy   action.Policy
	metrics  *action.Metrics
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*config)

// WithName names the store in logs.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithStorage sets the backing storage. Default: a new storage.Memory.
func WithStorage(st storage.Storage) Option {
	return func(c *config) { c.storage = st }
}

// WithIdentity sets the identity strategy. Default: the storage's identity
// when it exposes one, otherwise IdentityField("id").
func WithIdentity(identity storage.Identity) Option {
	return func(c *config) { c.identity = identity }
}

// WithIDGenerator sets the id generator of the default Memory storage. It
// has no effect together with WithStorage.
func WithIDGenerator(gen storage.IDGenerator) Option {
	return func(c *config) { c.ids = gen }
}

// WithData sets the initial contents.
func WithData(items []record.Record) Option {
	return func(c *config) { c.data = items }
}

// WithMediateDataConflicts turns on optimistic conflict detection. It
// implies a live ItemMap.
func WithMediateDataConflicts(on bool) Option {
	return func(c *config) { c.mediate = on }
}

// WithTracking keeps a live ItemMap of the collection.
func WithTracking(on bool) Option {
	return func(c *config) { c.tracking = on }
}

// WithPolicy sets the conflict policy. Default: action.Passive().
func WithPolicy(p action.Policy) Option {
	return func(c *config) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithMetrics records action metrics.
func WithMetrics(m *action.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
