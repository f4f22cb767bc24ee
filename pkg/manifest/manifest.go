// Package manifest renders the registered pipelines into the document the
// orchestrator consumes.
package manifest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/flycs/pkg/pipeline"
	"github.com/siqueiraa/flycs/pkg/registry"
	"github.com/siqueiraa/flycs/pkg/schedule"
)

// Map keys are sorted so identical pipelines always encode to identical
// bytes.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Options struct {
	// Environments to resolve schedules for. Defaults to every known
	// environment.
	Environments []string
	// From anchors the period comparison of chained schedules.
	From time.Time
}

// Entry is one rendered pipeline.
type Entry struct {
	Name        string         `json:"name" yaml:"name"`
	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Pipeline    map[string]any `json:"pipeline" yaml:"pipeline"`
}

// JSON encodes the entry on its own, as stored in the catalog.
func (e Entry) JSON() ([]byte, error) {
	return json.Marshal(e)
}

type Document struct {
	Pipelines []Entry `json:"pipelines" yaml:"pipelines"`
	// Schedules maps environment to pipeline name to resolved expression.
	Schedules   map[string]map[string]string `json:"schedules" yaml:"schedules"`
	Fingerprint string                       `json:"fingerprint" yaml:"fingerprint"`
}

// Render builds the document for every pipeline of reg, in registration
// order.
func Render(reg *registry.Registry, opts Options) (*Document, error) {
	envs := opts.Environments
	if len(envs) == 0 {
		envs = schedule.Environments
	}
	from := opts.From
	if from.IsZero() {
		from = time.Now().UTC()
	}

	schedules, err := reg.Schedules(envs, from)
	if err != nil {
		return nil, err
	}

	doc := &Document{Schedules: schedules}
	digest := xxhash.New()
	for _, p := range reg.Pipelines() {
		m := p.ToMap()
		b, err := json.Marshal(fingerprintInput(p, m))
		if err != nil {
			return nil, fmt.Errorf("encode pipeline %s: %w", p.Name, err)
		}
		fp := Fingerprint(b)
		doc.Pipelines = append(doc.Pipelines, Entry{Name: p.Name, Fingerprint: fp, Pipeline: m})
		digest.WriteString(p.Name)
		digest.Write([]byte{0})
		digest.WriteString(fp)
		digest.Write([]byte{0})
	}

	b, err := json.Marshal(schedules)
	if err != nil {
		return nil, err
	}
	digest.Write(b)
	doc.Fingerprint = strconv.FormatUint(digest.Sum64(), 16)
	return doc, nil
}

func (d *Document) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func (d *Document) EncodeYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// fingerprintInput leaves out a start time filled in at load, so an
// unchanged definition keeps its fingerprint across runs.
func fingerprintInput(p *pipeline.Pipeline, m map[string]any) map[string]any {
	if !p.StartTimeDefaulted() {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != "start_time" {
			out[k] = v
		}
	}
	return out
}

// Fingerprint is the hex xxhash64 of b.
func Fingerprint(b []byte) string {
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// Entry returns the rendered pipeline named name.
func (d *Document) Entry(name string) (Entry, bool) {
	for _, e := range d.Pipelines {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
