package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/siqueiraa/flycs/pkg/entity"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

func TestLoadFromFile(t *testing.T) {
	pipelinePath := writePipeline(t, t.TempDir(), "sales.yaml", getTestPipelineContent())
	ps, err := LoadFromFile(pipelinePath)
	if err != nil {
		t.Fatalf("Failed to load pipeline: %v", err)
	}
	if len(ps) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(ps))
	}

	p := ps[0]
	verifyBasicProperties(t, p)
	verifyEntities(t, p)
}

func writePipeline(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test pipeline: %v", err)
	}
	return path
}

func getTestPipelineContent() string {
	return `
name: sales
version: 1.2.0
kind: delta_tracking
schedule:
  tst: "@hourly"
  prd: "0 2 * * *"
start_time: "2024-03-01T06:00:00+0000"

entities:
  - name: customers
    version: 1.0.0
    base_layer: true
    stage_config:
      staging:
        clean_customers: 1.0.0
      data_mart:
        customer_report: 2.1.0
  - name: orders
    version: 1.0.0
    kind: vanilla
    location: EU
    stage_config:
      - name: raw
        versions:
          orders: 1.0.0
      - name: curated
        versions:
          orders_by_day: 1.1.0
`
}

func verifyBasicProperties(t *testing.T, p *Pipeline) {
	t.Helper()
	if p.Name != "sales" {
		t.Errorf("Expected name 'sales', got '%s'", p.Name)
	}
	if p.Version != "1.2.0" {
		t.Errorf("Expected version '1.2.0', got '%s'", p.Version)
	}
	if p.Kind != KindDeltaTracking {
		t.Errorf("Expected kind delta_tracking, got %s", p.Kind)
	}
	envs, ok := p.Schedule.(schedule.PerEnvironment)
	if !ok {
		t.Fatalf("Expected a per environment schedule, got %#v", p.Schedule)
	}
	if envs["prd"] != "0 2 * * *" || envs["tst"] != "@hourly" {
		t.Errorf("Unexpected schedule %v", envs)
	}
	if !p.StartTime.Equal(testStart) {
		t.Errorf("Expected start time %v, got %v", testStart, p.StartTime)
	}
}

func verifyEntities(t *testing.T, p *Pipeline) {
	t.Helper()
	if len(p.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(p.Entities))
	}

	customers := p.Entities[0]
	if len(customers.Stages) != len(entity.BaseLayerStages) {
		t.Errorf("Expected base layer stages, got %d stages", len(customers.Stages))
	}
	if v, _ := customers.StageVersions(entity.StageDataMart); v["customer_report"] != "2.1.0" {
		t.Errorf("Unexpected data_mart versions %v", v)
	}

	orders := p.Entities[1]
	if orders.Location != "EU" || orders.Kind != "vanilla" {
		t.Errorf("Unexpected orders entity %+v", orders)
	}
	if orders.Stages[0].Name != "raw" || orders.Stages[1].Name != "curated" {
		t.Errorf("Stage order not preserved: %+v", orders.Stages)
	}
}

func TestLoadFromFileParametrized(t *testing.T) {
	path := writePipeline(t, t.TempDir(), "events.yaml", `
name: events
version: 1.0.0
trigger:
  type: gcs_watch_prefix
  bucket: landing
  prefix: events/
parameters:
  language: [nl, fr]
  country: [be, en]
entities:
  - name: clicks
    version: 1.0.0
    stage_config:
      raw:
        clicks: 1.0.0
`)
	ps, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	wantNames := []string{"events_nl_be", "events_nl_en", "events_fr_be", "events_fr_en"}
	if len(ps) != len(wantNames) {
		t.Fatalf("expected %d pipelines, got %d", len(wantNames), len(ps))
	}
	for i, p := range ps {
		if p.Name != wantNames[i] {
			t.Errorf("pipeline %d = %s, want %s", i, p.Name, wantNames[i])
		}
		if _, ok := p.Trigger.(trigger.GCSPrefixWatch); !ok {
			t.Errorf("pipeline %d trigger = %#v", i, p.Trigger)
		}
		if _, ok := p.Schedule.(schedule.Continuous); !ok {
			t.Errorf("pipeline %d schedule = %#v, want Continuous", i, p.Schedule)
		}
		if p.Entities[0].Name != "clicks_"+wantNames[i][len("events_"):] {
			t.Errorf("pipeline %d entity = %s", i, p.Entities[0].Name)
		}
	}
}

func TestLoadFromFileScheduleAndTrigger(t *testing.T) {
	path := writePipeline(t, t.TempDir(), "p.yaml",
		"name: x\nversion: 1.0.0\nschedule: \"* 12 * * *\"\ntrigger:\n  type: pubsub\n  topic: t\n")
	ps, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if ps[0].Schedule != schedule.Cron("* 12 * * *") {
		t.Errorf("Schedule = %#v, want the declared cron", ps[0].Schedule)
	}
	if _, ok := ps[0].Trigger.(trigger.PubSub); !ok {
		t.Errorf("Trigger = %#v, want PubSub", ps[0].Trigger)
	}
	if !ps[0].StartTimeDefaulted() {
		t.Error("StartTimeDefaulted() = false for a definition without start_time")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"missing name", "version: 1.0.0\n"},
		{"bad version", "name: x\nversion: latest\n"},
		{"invalid cron", "name: x\nversion: 1.0.0\nschedule: \"every day\"\n"},
		{"unknown trigger", "name: x\nversion: 1.0.0\ntrigger:\n  type: ftp\n"},
		{"local start time", "name: x\nversion: 1.0.0\nstart_time: \"2024-03-01T06:00:00+0100\"\n"},
		{"not a base layer stage", `
name: x
version: 1.0.0
entities:
  - name: e
    version: 1.0.0
    base_layer: true
    stage_config:
      bronze:
        a: 1.0.0
`},
		{"bad stage version", `
name: x
version: 1.0.0
entities:
  - name: e
    version: 1.0.0
    stage_config:
      raw:
        a: "1"
`},
		{"duplicate parameter", "name: x\nversion: 1.0.0\nparameters:\n  a: [1]\n  a: [2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePipeline(t, t.TempDir(), "p.yaml", tt.content)
			if _, err := LoadFromFile(path); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "b.yaml", "name: b\nversion: 1.0.0\nschedule: \"@daily\"\n")
	writePipeline(t, dir, "a.yml", "name: a\nversion: 1.0.0\nparameters:\n  env: [x, y]\n")
	writePipeline(t, dir, filepath.Join("nested", "c.yaml"), "name: c\nversion: 1.0.0\n")
	writePipeline(t, dir, "notes.txt", "not a pipeline")

	ps, err := LoadDir(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	want := []string{"a_x", "a_y", "b", "c"}
	if len(ps) != len(want) {
		t.Fatalf("expected %d pipelines, got %d", len(want), len(ps))
	}
	for i, p := range ps {
		if p.Name != want[i] {
			t.Errorf("pipeline %d = %s, want %s", i, p.Name, want[i])
		}
	}

	writePipeline(t, dir, "broken.yaml", "name: broken\nversion: nope\n")
	if _, err := LoadDir(context.Background(), dir, 2); err == nil {
		t.Errorf("Expected error for broken definition")
	}
}
