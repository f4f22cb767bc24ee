package pipeline

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/siqueiraa/flycs/pkg/entity"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/schema"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

var testStart = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func testEntity() *entity.Entity {
	return entity.New("customers", "1.0.0", entity.Stage{
		Name:     "staging",
		Versions: map[string]string{"clean_customers": "1.0.0"},
	})
}

func TestNewValidation(t *testing.T) {
	brussels := time.FixedZone("CET", 3600)
	tests := []struct {
		name    string
		version string
		opts    []Option
		wantErr error
	}{
		{
			name:    "valid pipeline",
			version: "1.0.0",
			opts:    []Option{WithSchedule(schedule.Cron("@daily")), WithStartTime(testStart), WithEntities(testEntity())},
		},
		{
			name:    "invalid version",
			version: "1.0",
			wantErr: schema.ErrInvalidValue,
		},
		{
			name:    "unknown kind",
			version: "1.0.0",
			opts:    []Option{WithKind("streaming")},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "start time not in UTC",
			version: "1.0.0",
			opts:    []Option{WithStartTime(testStart.In(brussels))},
			wantErr: schema.ErrInvalidValue,
		},
		{
			name:    "invalid cron",
			version: "1.0.0",
			opts:    []Option{WithSchedule(schedule.Cron("every day"))},
			wantErr: schedule.ErrInvalidCron,
		},
		{
			name:    "schedule and trigger",
			version: "1.0.0",
			opts: []Option{
				WithSchedule(schedule.Cron("* 12 * * *")),
				WithTrigger(trigger.PubSub{Topic: "load"}),
			},
		},
		{
			name:    "continuous without trigger",
			version: "1.0.0",
			opts:    []Option{WithSchedule(schedule.Continuous{})},
			wantErr: ErrContinuousWithoutTrigger,
		},
		{
			name:    "invalid entity",
			version: "1.0.0",
			opts:    []Option{WithEntities(entity.New("broken", "x"))},
			wantErr: schema.ErrInvalidValue,
		},
		{
			name:    "unknown entity kind",
			version: "1.0.0",
			opts:    []Option{WithEntities(&entity.Entity{Name: "e", Version: "1.0.0", Kind: "lake"})},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "duplicate entity",
			version: "1.0.0",
			opts:    []Option{WithEntities(testEntity(), testEntity())},
			wantErr: ErrDuplicateEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("sales", tt.version, tt.opts...)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("New() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Second)
	p, err := New("sales", "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Kind != KindVanilla {
		t.Errorf("Kind = %s, want %s", p.Kind, KindVanilla)
	}
	if p.Schedule != nil {
		t.Errorf("Schedule = %v, want nil for a manual pipeline", p.Schedule)
	}
	if p.StartTime.Before(before) || p.StartTime.Location() != time.UTC || p.StartTime.Nanosecond() != 0 {
		t.Errorf("unexpected default start time %v", p.StartTime)
	}
	if !p.StartTimeDefaulted() {
		t.Error("StartTimeDefaulted() = false for a pipeline without a start time")
	}

	pinned, err := New("sales", "1.0.0", WithStartTime(testStart))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if pinned.StartTimeDefaulted() {
		t.Error("StartTimeDefaulted() = true for a declared start time")
	}
}

func TestScheduleWithTrigger(t *testing.T) {
	p, err := New("test", "1.0.0",
		WithSchedule(schedule.Cron("* 12 * * *")),
		WithTrigger(trigger.PubSub{Topic: "my_topic"}),
		WithStartTime(time.Unix(1606923514, 0).UTC()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Schedule != schedule.Cron("* 12 * * *") {
		t.Errorf("Schedule = %#v, want the declared cron", p.Schedule)
	}

	m := p.ToMap()
	verifyField(t, m, "schedule", "* 12 * * *")
	if m["trigger"] == nil {
		t.Error("trigger missing from ToMap")
	}

	back, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}
	if !reflect.DeepEqual(back.ToMap(), m) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", back.ToMap(), m)
	}
}

func TestTriggerWithoutScheduleIsContinuous(t *testing.T) {
	p, err := New("sales", "1.0.0", WithTrigger(trigger.GCSObjectExist{Bucket: "b", Object: "o"}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.Schedule.(schedule.Continuous); !ok {
		t.Errorf("Schedule = %#v, want Continuous", p.Schedule)
	}
	if got := p.ToMap()["schedule"]; got != nil {
		t.Errorf("serialized schedule = %v, want nil", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() after normalization error = %v", err)
	}
}

func TestUTCOffsetZoneIsAccepted(t *testing.T) {
	p, err := New("sales", "1.0.0", WithStartTime(testStart.In(time.FixedZone("", 0))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.StartTime.Location() != time.UTC {
		t.Errorf("start time location = %v, want UTC", p.StartTime.Location())
	}
}

func TestAddEntity(t *testing.T) {
	p, err := New("sales", "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.AddEntity(testEntity()); err != nil {
		t.Fatalf("AddEntity() error = %v", err)
	}
	if err := p.AddEntity(testEntity()); !errors.Is(err, ErrDuplicateEntity) {
		t.Errorf("error = %v, want %v", err, ErrDuplicateEntity)
	}
	if err := p.AddEntity(entity.New("", "1.0.0")); !errors.Is(err, schema.ErrMissingField) {
		t.Errorf("error = %v, want %v", err, schema.ErrMissingField)
	}

	delta := testEntity()
	delta.Name = "orders"
	delta.Kind = string(KindDeltaTracking)
	if err := p.AddEntity(delta); err != nil {
		t.Fatalf("AddEntity() error = %v", err)
	}
	if p.EntityKind(delta) != KindDeltaTracking || p.EntityKind(p.Entities[0]) != KindVanilla {
		t.Errorf("entity kinds not resolved against the pipeline kind")
	}
}

func TestToMap(t *testing.T) {
	p, err := New("sales", "1.0.0",
		WithKind(KindDataVault),
		WithSchedule(schedule.PerEnvironment{"prd": "0 2 * * *"}),
		WithStartTime(testStart),
		WithEntities(testEntity()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m := p.ToMap()
	verifyField(t, m, "name", "sales")
	verifyField(t, m, "start_time", "2024-03-01T06:00:00+0000")
	verifyField(t, m, "kind", "data_vault")
	verifyField(t, m, "schedule", map[string]any{"prd": "0 2 * * *"})
	verifyField(t, m, "trigger", nil)
	verifyField(t, m, "params", map[string]any{})
	if entities := m["entities"].([]any); len(entities) != 1 {
		t.Errorf("expected 1 entity, got %d", len(entities))
	}
}

func TestMapRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"cron", []Option{WithSchedule(schedule.Cron("*/10 * * * *"))}},
		{"chained", []Option{WithSchedule(schedule.Chained{Parents: []trigger.Reference{{Name: "ingest", Version: "2.0.0"}}})}},
		{"triggered", []Option{WithTrigger(trigger.PubSub{Topic: "t", SubscriptionProject: "ops"})}},
		{"dependency trigger", []Option{WithTrigger(trigger.PipelineDependency{Parents: []trigger.Reference{{Name: "a", Version: "1.0.0"}}})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithStartTime(testStart), WithEntities(testEntity())}, tt.opts...)
			p, err := New("sales", "1.0.0", opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			back, err := FromMap(p.ToMap())
			if err != nil {
				t.Fatalf("FromMap() error = %v", err)
			}
			if !back.StartTime.Equal(p.StartTime) {
				t.Errorf("start time = %v, want %v", back.StartTime, p.StartTime)
			}
			if !reflect.DeepEqual(back.Schedule, p.Schedule) || !reflect.DeepEqual(back.Trigger, p.Trigger) {
				t.Errorf("schedule/trigger mismatch: got %#v %#v, want %#v %#v", back.Schedule, back.Trigger, p.Schedule, p.Trigger)
			}
			if !reflect.DeepEqual(back.ToMap(), p.ToMap()) {
				t.Errorf("round trip mismatch:\n got  %v\n want %v", back.ToMap(), p.ToMap())
			}
		})
	}
}

func TestParseStartTime(t *testing.T) {
	for _, s := range []string{"2024-03-01T06:00:00+0000", "2024-03-01T06:00:00Z"} {
		got, err := ParseStartTime(s)
		if err != nil {
			t.Fatalf("ParseStartTime(%s) error = %v", s, err)
		}
		if !got.Equal(testStart) {
			t.Errorf("ParseStartTime(%s) = %v, want %v", s, got, testStart)
		}
	}
	if _, err := ParseStartTime("yesterday"); !errors.Is(err, schema.ErrInvalidValue) {
		t.Errorf("error = %v, want %v", err, schema.ErrInvalidValue)
	}
}

func verifyField(t *testing.T, m map[string]any, key string, want any) {
	t.Helper()
	if !reflect.DeepEqual(m[key], want) {
		t.Errorf("%s = %#v, want %#v", key, m[key], want)
	}
}
