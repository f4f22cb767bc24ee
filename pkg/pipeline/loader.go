package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/flycs/pkg/entity"
	"github.com/siqueiraa/flycs/pkg/param"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/schema"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

// Definition is the YAML form of a pipeline. When Parameters is set it
// describes a parametrized pipeline.
//
//	name: sales
//	version: 1.0.0
//	schedule: "@daily"
//	parameters:
//	  language: [nl, fr]
//	entities:
//	  - name: customers
//	    version: 1.0.0
//	    base_layer: true
//	    stage_config:
//	      staging:
//	        clean_customers: 1.0.0
type Definition struct {
	Name       string             `yaml:"name"`
	Version    string             `yaml:"version"`
	Kind       string             `yaml:"kind,omitempty"`
	Schedule   any                `yaml:"schedule,omitempty"`
	StartTime  string             `yaml:"start_time,omitempty"`
	Trigger    map[string]any     `yaml:"trigger,omitempty"`
	Parameters param.Parameters   `yaml:"parameters,omitempty"`
	Entities   []EntityDefinition `yaml:"entities"`
}

type EntityDefinition struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Kind     string `yaml:"kind,omitempty"`
	Location string `yaml:"location,omitempty"`
	// BaseLayer starts from the five fixed stages; stage_config may only
	// fill those.
	BaseLayer   bool               `yaml:"base_layer,omitempty"`
	StageConfig entity.StageConfig `yaml:"stage_config,omitempty"`
}

func (d EntityDefinition) build() (*entity.Entity, error) {
	var e *entity.Entity
	if d.BaseLayer {
		e = entity.NewBaseLayer(d.Name, d.Version, entity.BaseLayerVersions{})
		for _, s := range d.StageConfig {
			if _, err := e.StageVersions(s.Name); err != nil {
				return nil, schema.Invalid("stage_config."+s.Name, "%s is not a base layer stage", s.Name)
			}
			for asset, version := range s.Versions {
				e.SetStageVersion(s.Name, asset, version)
			}
		}
	} else {
		e = entity.New(d.Name, d.Version, d.StageConfig...)
	}
	e.Kind = d.Kind
	e.Location = d.Location
	return e, nil
}

// Pipelines turns the definition into concrete pipelines, expanding
// parameters when present.
func (d Definition) Pipelines() ([]*Pipeline, error) {
	sched, err := schedule.FromValue(d.Schedule)
	if err != nil {
		return nil, err
	}
	var trig trigger.Trigger
	if d.Trigger != nil {
		if trig, err = trigger.FromMap(d.Trigger); err != nil {
			return nil, schema.Prefix("trigger", err)
		}
	}
	var start time.Time
	if d.StartTime != "" {
		if start, err = ParseStartTime(d.StartTime); err != nil {
			return nil, err
		}
	}

	entities := make([]*entity.Entity, 0, len(d.Entities))
	for i, ed := range d.Entities {
		e, err := ed.build()
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("entities[%d]", i), err)
		}
		entities = append(entities, e)
	}

	kind := Kind(d.Kind)
	if len(d.Parameters) == 0 {
		p, err := New(d.Name, d.Version,
			WithKind(kind),
			WithSchedule(sched),
			WithTrigger(trig),
			WithStartTime(start),
			WithEntities(entities...),
		)
		if err != nil {
			return nil, err
		}
		return []*Pipeline{p}, nil
	}

	pp := &Parametrized{
		Name:       d.Name,
		Version:    d.Version,
		Kind:       kind,
		Schedule:   sched,
		Trigger:    trig,
		StartTime:  start,
		Parameters: d.Parameters,
	}
	for _, e := range entities {
		pp.AddEntity(entity.NewParametrized(e))
	}
	return pp.Expand()
}

// LoadFromFile reads one pipeline definition.
func LoadFromFile(path string) ([]*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Check for empty file
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pipeline file %s", path)
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if d.Name == "" {
		return nil, fmt.Errorf("%s: pipeline name is required", path)
	}
	if len(d.Entities) == 0 {
		log.Warn().Str("component", "pipeline").Str("pipeline", d.Name).Msg("Pipeline defines no entities")
	}

	ps, err := d.Pipelines()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// LoadDir loads every *.yaml and *.yml definition under dir, reading at most
// concurrency files at a time. Pipelines are returned in file path order.
func LoadDir(ctx context.Context, dir string, concurrency int) ([]*Pipeline, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !info.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	if concurrency <= 0 {
		concurrency = 4
	}
	loaded := make([][]*Pipeline, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ps, err := LoadFromFile(path)
			if err != nil {
				return err
			}
			loaded[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*Pipeline
	for _, ps := range loaded {
		out = append(out, ps...)
	}
	log.Info().Str("component", "pipeline").Str("dir", dir).Int("pipelines", len(out)).Msg("Pipeline definitions loaded")
	return out, nil
}
