package bufcodec

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// LoadOption configures LoadRecords.
type LoadOption func(*loadConfig)

type loadConfig struct {
	workers    int
	logger     *slog.Logger
	registry   *Registry
	readerOpts []Option
}

func defaultLoadConfig() *loadConfig {
	return &loadConfig{
		workers: 1,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithWorkers sets how many records are decoded concurrently.
func WithWorkers(n int) LoadOption {
	return func(c *loadConfig) {
		c.workers = n
	}
}

// WithLogger sets the logger that reports skipped records.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry names record types in log output by their registered names.
func WithRegistry(reg *Registry) LoadOption {
	return func(c *loadConfig) {
		c.registry = reg
	}
}

// WithReaderOptions sets the options for each record's Reader.
func WithReaderOptions(opts ...Option) LoadOption {
	return func(c *loadConfig) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// RecordError reports a record that LoadRecords skipped.
type RecordError struct {
	Index    int
	TypeHash uint64
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (type %016x): %v", e.Index, e.TypeHash, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// LoadRecords decodes every record in blob as a T, one Reader per record.
// A record that fails to decode is skipped, logged and reported in the
// second result; the others are returned in blob order. The error result is
// non-nil only if ctx is cancelled.
func LoadRecords[T any, PT VersionedDecodablePtr[T]](ctx context.Context, blob *Blob, key Key, opts ...LoadOption) ([]T, []*RecordError, error) {
	cfg := defaultLoadConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	n := len(blob.Records)
	values := make([]T, n)
	failures := make([]*RecordError, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.workers, 1))
	for i, rec := range blob.Records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := DecodeRecord[T, PT](rec, key, cfg.readerOpts...)
			if err != nil {
				hash, _, _ := rec.Header()
				failures[i] = &RecordError{Index: rec.Index, TypeHash: hash, Err: err}
				return nil
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	loaded := make([]T, 0, n)
	var skipped []*RecordError
	for i := range n {
		if failures[i] != nil {
			skipped = append(skipped, failures[i])
			cfg.logSkipped(failures[i])
			continue
		}
		loaded = append(loaded, values[i])
	}
	return loaded, skipped, nil
}

func (c *loadConfig) logSkipped(re *RecordError) {
	attrs := []any{
		"index", re.Index,
		"type_hash", fmt.Sprintf("%016x", re.TypeHash),
		"error", re.Err,
	}
	if c.registry != nil {
		if name, ok := c.registry.Lookup(re.TypeHash); ok {
			attrs = append(attrs, "type", name)
		}
	}
	c.logger.Warn("skipping record", attrs...)
}
