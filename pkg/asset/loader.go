package asset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/flycs/pkg/schema"
)

// Located is an asset loaded from a project directory.
type Located struct {
	Stage string
	Path  string
	Asset Asset
}

// Project directories and the asset kind their files default to.
var projectDirs = []struct {
	dir  string
	kind Kind
}{
	{"queries", KindTransformation},
	{"views", KindView},
	{"functions", KindFunction},
	{"procedures", KindStoredProcedure},
}

// DefaultConcurrency bounds LoadProject when no limit is given.
const DefaultConcurrency = 8

// LoadFile reads one YAML asset file. NAME defaults to the file name without
// extension and KIND to defaultKind.
func LoadFile(path string, defaultKind Kind) (Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty asset file %s", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty asset file %s", path)
	}

	m := schema.Mapping(raw)
	if !m.Has("NAME") {
		m["NAME"] = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	a, err := FromMap(m, defaultKind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if t, ok := a.(*Transformation); ok && t.HasOutput && len(t.Schema) == 0 {
		log.Debug().Str("component", "asset").Str("asset", t.Name).
			Msg("No schema defined. Output table schema will be inferred.")
	}
	return a, nil
}

type loadJob struct {
	stage string
	path  string
	kind  Kind
}

// LoadProject loads every asset under root following the
// <kind dir>/<stage>/<name>.yaml layout. Files are read concurrently, at
// most concurrency at a time; the result is ordered by kind directory,
// stage and file name.
func LoadProject(ctx context.Context, root string, concurrency int) ([]Located, error) {
	jobs, err := collectJobs(root)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	out := make([]Located, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := LoadFile(job.path, job.kind)
			if err != nil {
				return err
			}
			out[i] = Located{Stage: job.stage, Path: job.path, Asset: a}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Str("component", "asset").Str("root", root).Int("assets", len(out)).Msg("Project loaded")
	return out, nil
}

func collectJobs(root string) ([]loadJob, error) {
	var jobs []loadJob
	for _, pd := range projectDirs {
		kindDir := filepath.Join(root, pd.dir)
		stages, err := os.ReadDir(kindDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, stage := range stages {
			if !stage.IsDir() {
				log.Warn().Str("component", "asset").Str("path", filepath.Join(kindDir, stage.Name())).
					Msg("Skipping file outside a stage directory")
				continue
			}
			files, err := os.ReadDir(filepath.Join(kindDir, stage.Name()))
			if err != nil {
				return nil, err
			}
			var paths []string
			for _, f := range files {
				if f.IsDir() || !isYAML(f.Name()) {
					continue
				}
				paths = append(paths, filepath.Join(kindDir, stage.Name(), f.Name()))
			}
			sort.Strings(paths)
			for _, p := range paths {
				jobs = append(jobs, loadJob{stage: stage.Name(), path: p, kind: pd.kind})
			}
		}
	}
	return jobs, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Find returns the loaded asset with the given stage, name and version.
func Find(located []Located, stage, name, version string) (Located, bool) {
	for _, l := range located {
		b := l.Asset.Base()
		if l.Stage == stage && b.Name == name && b.Version == version {
			return l, true
		}
	}
	return Located{}, false
}
