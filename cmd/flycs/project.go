package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/siqueiraa/flycs/pkg/asset"
	"github.com/siqueiraa/flycs/pkg/config"
	"github.com/siqueiraa/flycs/pkg/manifest"
	"github.com/siqueiraa/flycs/pkg/pipeline"
	"github.com/siqueiraa/flycs/pkg/registry"
)

// project is everything loaded from the project root.
type project struct {
	Assets   []asset.Located
	Registry *registry.Registry
}

func loadProject(ctx context.Context, cfg config.AppConfig) (*project, error) {
	if cfg.Loader.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Loader.Timeout)
		defer cancel()
	}

	located, err := asset.LoadProject(ctx, cfg.Project.Root, cfg.Loader.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	dir := cfg.Project.Pipelines
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Project.Root, dir)
	}
	var pipelines []*pipeline.Pipeline
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Warn().Str("component", "loader").Str("dir", dir).Msg("No pipeline directory")
	} else {
		pipelines, err = pipeline.LoadDir(ctx, dir, cfg.Loader.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("load pipelines: %w", err)
		}
	}

	for _, p := range pipelines {
		if err := p.Bind(located); err != nil {
			return nil, err
		}
	}

	reg := registry.New()
	if err := reg.Register(pipelines...); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "loader").
		Int("assets", len(located)).
		Int("pipelines", reg.Len()).
		Msg("Project loaded")
	return &project{Assets: located, Registry: reg}, nil
}

func renderManifest(p *project, cfg config.AppConfig) (*manifest.Document, error) {
	return manifest.Render(p.Registry, manifest.Options{Environments: cfg.Project.Environments})
}
