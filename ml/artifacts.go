package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactPaths locates the model and schema files.
type ArtifactPaths struct {
	Model  string
	Schema string
}

// generation is one load attempt. Its fields are written inside once and
// read only after once has returned.
type generation struct {
	once   sync.Once
	done   atomic.Bool
	model  Regressor
	schema ModelSchema
	err    error
}

// Artifacts is the process-wide model handle. The first Get loads the model
// and schema; later calls share the result. A failed load is remembered and
// returned as-is until Watch sees the artifact rewritten.
type Artifacts struct {
	paths  ArtifactPaths
	logger *zap.Logger
	gen    atomic.Pointer[generation]
	loads  atomic.Int64
}

// NewArtifacts creates an unloaded handle.
func NewArtifacts(paths ArtifactPaths, logger *zap.Logger) *Artifacts {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Artifacts{paths: paths, logger: logger}
	a.gen.Store(&generation{})
	return a
}

// Get returns the model and schema, loading them on first use.
func (a *Artifacts) Get() (Regressor, ModelSchema, error) {
	g := a.gen.Load()
	g.once.Do(func() { a.load(g) })
	return g.model, g.schema, g.err
}

// Loads reports how many times the artifacts have been read from disk.
func (a *Artifacts) Loads() int64 { return a.loads.Load() }

// State is "unloaded", "ready" or "failed".
func (a *Artifacts) State() string {
	g := a.gen.Load()
	switch {
	case !g.done.Load():
		return "unloaded"
	case g.err != nil:
		return "failed"
	}
	return "ready"
}

func (a *Artifacts) load(g *generation) {
	defer g.done.Store(true)
	a.loads.Add(1)

	model, err := LoadModel(a.paths.Model)
	if err != nil {
		g.err = err
		a.logger.Error("model load failed", zap.String("stage", "load"), zap.String("path", a.paths.Model), zap.Error(err))
		return
	}
	schema, err := LoadSchema(a.paths.Schema)
	if err != nil {
		g.err = &ModelUnavailableError{Path: a.paths.Schema, Err: err}
		a.logger.Error("schema load failed", zap.String("stage", "load"), zap.String("path", a.paths.Schema), zap.Error(err))
		return
	}
	g.model, g.schema = model, schema
	a.logger.Info("model loaded",
		zap.String("model", a.paths.Model),
		zap.String("schema", a.paths.Schema),
		zap.Int("features", schema.Len()))
}

// retry discards a failed generation so the next Get reloads. A successful
// load is never replaced.
func (a *Artifacts) retry() bool {
	g := a.gen.Load()
	if !g.done.Load() || g.err == nil {
		return false
	}
	return a.gen.CompareAndSwap(g, &generation{})
}

// Watch follows the artifact directories and clears a failed load when
// either file is created or rewritten. It blocks until ctx is done.
func (a *Artifacts) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	targets := map[string]bool{
		filepath.Clean(a.paths.Model):  true,
		filepath.Clean(a.paths.Schema): true,
	}
	dirs := map[string]bool{}
	for path := range targets {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if a.retry() {
				a.logger.Info("artifact changed, next request reloads", zap.String("path", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
