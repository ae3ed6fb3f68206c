package vocab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Data is the reference data the pipeline and the gate read.
type Data struct {
	Allowlist  Allowlist
	Vocabulary *Vocabulary
}

// Loader produces Data; it runs once per Catalog.
type Loader func(ctx context.Context) (Data, error)

// FileLoader reads the allowlist and vocabulary files.
func FileLoader(allowlistPath, vocabularyPath string) Loader {
	return func(context.Context) (Data, error) {
		allow, err := LoadAllowlist(allowlistPath)
		if err != nil {
			return Data{}, err
		}
		v, err := LoadVocabulary(vocabularyPath)
		if err != nil {
			return Data{}, err
		}
		return Data{Allowlist: allow, Vocabulary: v}, nil
	}
}

// Catalog is process-scoped reference data. Start triggers the load exactly
// once; Ready is closed when it finishes, successfully or not.
type Catalog struct {
	load   Loader
	logger *slog.Logger

	once  sync.Once
	ready chan struct{}
	data  Data
	err   error
}

// NewCatalog wires a loader; nothing is read until Start.
func NewCatalog(load Loader, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		load:   load,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Static returns a catalog that is ready immediately.
func Static(data Data) *Catalog {
	c := NewCatalog(func(context.Context) (Data, error) { return data, nil }, nil)
	c.Start(context.Background())
	return c
}

// Start loads the data synchronously; later calls are no-ops.
func (c *Catalog) Start(ctx context.Context) {
	c.once.Do(func() {
		defer close(c.ready)
		if c.load == nil {
			c.err = fmt.Errorf("catalog: no loader configured")
			return
		}
		c.data, c.err = c.load(ctx)
		if c.err != nil {
			c.logger.Error("reference data load failed", "error", c.err)
			return
		}
		c.logger.Info("reference data loaded",
			"allowlist", len(c.data.Allowlist),
			"effects", c.data.Vocabulary.Len())
	})
}

// Ready is closed once Start has finished.
func (c *Catalog) Ready() <-chan struct{} {
	return c.ready
}

// Loaded reports readiness without blocking.
func (c *Catalog) Loaded() bool {
	select {
	case <-c.ready:
		return c.err == nil
	default:
		return false
	}
}

// Snapshot returns the data without waiting; ok is false until loaded.
func (c *Catalog) Snapshot() (Data, bool) {
	if !c.Loaded() {
		return Data{}, false
	}
	return c.data, true
}

// Get blocks until the data is loaded or ctx is done.
func (c *Catalog) Get(ctx context.Context) (Data, error) {
	select {
	case <-c.ready:
		if c.err != nil {
			return Data{}, fmt.Errorf("reference data: %w", c.err)
		}
		return c.data, nil
	case <-ctx.Done():
		return Data{}, fmt.Errorf("wait for reference data: %w", ctx.Err())
	}
}
