package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/config"
	"github.com/zjrosen/metagraph/internal/engine"
	"github.com/zjrosen/metagraph/internal/fileprovider"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/manifest"
)

// workspace is a running engine with the file and artifact providers bound.
type workspace struct {
	root         string
	manifestPath string
	engine       *engine.Engine
	files        *fileprovider.Provider
	artifacts    *manifest.Provider
}

func openWorkspace(ctx context.Context, cfg config.Config, source command.CommandSource) (*workspace, error) {
	root := cfg.Watcher.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		root = wd
	}

	manifestPath := cfg.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(root, manifestPath)
	}
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	e, err := engine.New(engine.Config{
		CacheCapacity:        cfg.Cache.Capacity,
		TraceLevel:           cfg.Registry.TraceLevel,
		QueueCapacity:        cfg.Engine.QueueCapacity,
		SlowCommandThreshold: cfg.Engine.SlowCommandThreshold,
		Tracer:               activeTracer(),
		Source:               source,
	})
	if err != nil {
		return nil, err
	}

	files, err := fileprovider.New(root)
	if err != nil {
		return nil, err
	}
	artifacts := manifest.NewProvider(m, e.Service())

	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	w := &workspace{
		root:         files.Root(),
		manifestPath: manifestPath,
		engine:       e,
		files:        files,
		artifacts:    artifacts,
	}
	if err := e.RegisterProvider(ctx, files); err != nil {
		w.Close()
		return nil, err
	}
	if err := e.RegisterProvider(ctx, artifacts); err != nil {
		w.Close()
		return nil, err
	}

	log.Info(log.CatManifest, "Workspace opened", "root", w.root, "manifest", manifestPath,
		"artifacts", len(m.Artifacts))
	return w, nil
}

// computeAll reads every artifact in name order.
func (w *workspace) computeAll(ctx context.Context) ([]*manifest.Item, error) {
	ids := w.artifacts.IDs()
	items := make([]*manifest.Item, 0, len(ids))
	for _, id := range ids {
		item, err := w.engine.Get(ctx, id, false)
		if err != nil {
			return nil, err
		}
		if a, ok := item.(*manifest.Item); ok {
			items = append(items, a)
		}
	}
	return items, nil
}

func (w *workspace) Close() {
	w.engine.Stop()
}

func activeTracer() trace.Tracer {
	if tracer == nil || !tracer.Enabled() {
		return nil
	}
	return tracer.Tracer()
}
