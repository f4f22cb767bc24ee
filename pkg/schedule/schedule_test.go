package schedule

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/siqueiraa/flycs/pkg/schema"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

func TestFromValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    Schedule
		wantErr error
	}{
		{name: "none", value: nil, want: nil},
		{name: "cron", value: "0 3 * * *", want: Cron("0 3 * * *")},
		{name: "descriptor", value: "@daily", want: Cron("@daily")},
		{name: "once", value: "@once", want: Cron("@once")},
		{name: "every", value: "@every 90m", want: Cron("@every 90m")},
		{
			name:  "per environment",
			value: map[string]any{"tst": "@hourly", "prd": "0 2 * * *"},
			want:  PerEnvironment{"tst": "@hourly", "prd": "0 2 * * *"},
		},
		{
			name:  "chained",
			value: []any{map[string]any{"name": "ingest", "version": "1.0.0"}},
			want:  Chained{Parents: []trigger.Reference{{Name: "ingest", Version: "1.0.0"}}},
		},
		{name: "bad cron", value: "every day", wantErr: ErrInvalidCron},
		{name: "bad environment", value: map[string]any{"dev": "@daily"}, wantErr: ErrUnknownEnvironment},
		{name: "bad environment cron", value: map[string]any{"prd": "* *"}, wantErr: ErrInvalidCron},
		{name: "environment cron not a string", value: map[string]any{"prd": 5}, wantErr: schema.ErrInvalidType},
		{name: "empty chain", value: []any{}, wantErr: schema.ErrMissingField},
		{name: "wrong type", value: 12, wantErr: schema.ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromValue(tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FromValue() = %#v, want %#v", got, tt.want)
			}
			if got == nil {
				return
			}
			back, err := FromValue(got.Value())
			if err != nil {
				t.Fatalf("FromValue(Value()) error = %v", err)
			}
			if !reflect.DeepEqual(back, got) {
				t.Errorf("round trip = %#v, want %#v", back, got)
			}
		})
	}
}

func TestContinuousHasNoWireForm(t *testing.T) {
	var s Schedule = Continuous{}
	if s.Value() != nil {
		t.Errorf("Continuous.Value() = %v, want nil", s.Value())
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Continuous.Validate() error = %v", err)
	}
}

func TestPeriod(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"@hourly", time.Hour},
		{"@daily", 24 * time.Hour},
		{"*/15 * * * *", 15 * time.Minute},
		{"@every 90m", 90 * time.Minute},
		{"0 3 * * 1", 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Period(tt.expr, from)
			if err != nil {
				t.Fatalf("Period() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Period(%s) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}

	if _, err := Period("nonsense", from); !errors.Is(err, ErrInvalidCron) {
		t.Errorf("error = %v, want %v", err, ErrInvalidCron)
	}
}

func TestWidest(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		exprs []string
		want  string
	}{
		{"single", []string{"@hourly"}, "@hourly"},
		{"daily beats hourly", []string{"@hourly", "@daily", "*/5 * * * *"}, "@daily"},
		{"once is widest", []string{"@weekly", "@once"}, "@once"},
		{"ties are stable", []string{"0 0 * * *", "@daily"}, "0 0 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Widest(tt.exprs, from)
			if err != nil {
				t.Fatalf("Widest() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Widest() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := Widest(nil, from); err == nil {
		t.Errorf("expected error for no schedules")
	}
}
