package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/siqueiraa/flycs/pkg/catalog"
	"github.com/siqueiraa/flycs/pkg/manifest"
	"github.com/siqueiraa/flycs/pkg/pipeline"
	"github.com/siqueiraa/flycs/pkg/registry"
)

type memoryPublisher struct {
	objects map[string][]byte
	puts    []string
	fail    string
}

func newMemoryPublisher() *memoryPublisher {
	return &memoryPublisher{objects: make(map[string][]byte)}
}

func (m *memoryPublisher) Publish(_ context.Context, key string, body []byte) (string, error) {
	if key == m.fail {
		return "", errors.New("upload refused")
	}
	m.objects[key] = append([]byte(nil), body...)
	m.puts = append(m.puts, key)
	return "mem://" + key, nil
}

func (m *memoryPublisher) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(catalog.Options{InMemory: true})
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func document(entries map[string]string) *manifest.Document {
	doc := &manifest.Document{Schedules: map[string]map[string]string{}}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Pipelines = append(doc.Pipelines, manifest.Entry{
			Name:        name,
			Fingerprint: entries[name],
			Pipeline:    map[string]any{"name": name},
		})
	}
	return doc
}

func verifyNames(t *testing.T, label string, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", label, got, want)
		}
	}
}

func TestSyncUploadsOnlyChanged(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	pub := newMemoryPublisher()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	res, err := Sync(ctx, store, pub, document(map[string]string{"a": "1", "b": "1"}), Options{Now: now})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "uploaded", res.Uploaded, "a", "b")
	if _, ok := pub.objects[ManifestKey]; !ok {
		t.Errorf("manifest should be uploaded when pipelines change")
	}

	pub.puts = nil
	res, err = Sync(ctx, store, pub, document(map[string]string{"a": "1", "b": "2"}), Options{Now: now})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "uploaded", res.Uploaded, "b")
	verifyNames(t, "unchanged", res.Unchanged, "a")
	verifyNames(t, "puts", pub.puts, PipelineKey("b"), ManifestKey)

	rec, err := store.Get("b")
	if err != nil || rec.Fingerprint != "2" {
		t.Errorf("catalog record for b = %+v, %v", rec, err)
	}

	pub.puts = nil
	res, err = Sync(ctx, store, pub, document(map[string]string{"a": "1", "b": "2"}), Options{Now: now})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Changed() || len(pub.puts) != 0 {
		t.Errorf("unchanged document should upload nothing, got %v", pub.puts)
	}
}

func TestSyncSkipsUnchangedDefinition(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	pub := newMemoryPublisher()
	path := filepath.Join(t.TempDir(), "sales.yaml")
	if err := os.WriteFile(path, []byte("name: sales\nversion: 1.0.0\nschedule: \"@daily\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write pipeline: %v", err)
	}

	render := func(shift time.Duration) *manifest.Document {
		t.Helper()
		ps, err := pipeline.LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}
		ps[0].StartTime = ps[0].StartTime.Add(shift)
		r := registry.New()
		if err := r.Register(ps...); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		doc, err := manifest.Render(r, manifest.Options{Environments: []string{"prd"}})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		return doc
	}

	res, err := Sync(ctx, store, pub, render(0), Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "uploaded", res.Uploaded, "sales")

	pub.puts = nil
	res, err = Sync(ctx, store, pub, render(2*time.Second), Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "uploaded", res.Uploaded)
	verifyNames(t, "unchanged", res.Unchanged, "sales")
	if len(pub.puts) != 0 {
		t.Errorf("unchanged definition should upload nothing, got %v", pub.puts)
	}
}

func TestSyncFailedUploadIsRetried(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	pub := newMemoryPublisher()
	pub.fail = PipelineKey("a")

	if _, err := Sync(ctx, store, pub, document(map[string]string{"a": "1"}), Options{}); err == nil {
		t.Fatalf("expected upload error")
	}
	if _, err := store.Get("a"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("failed upload must not be recorded, got %v", err)
	}

	pub.fail = ""
	res, err := Sync(ctx, store, pub, document(map[string]string{"a": "1"}), Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "uploaded", res.Uploaded, "a")
}

func TestSyncPrune(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	pub := newMemoryPublisher()

	if _, err := Sync(ctx, store, pub, document(map[string]string{"a": "1", "b": "1"}), Options{}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	res, err := Sync(ctx, store, pub, document(map[string]string{"a": "1"}), Options{Prune: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	verifyNames(t, "pruned", res.Pruned, "b")
	if !res.Changed() {
		t.Errorf("pruning should count as a change")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	pub := newMemoryPublisher()

	if _, err := Sync(ctx, store, pub, document(map[string]string{"a": "1"}), Options{Snapshot: true}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, ok := pub.objects[SnapshotKey]; !ok {
		t.Fatalf("snapshot should be uploaded")
	}

	fresh := openStore(t)
	restored, err := RestoreSnapshot(ctx, fresh, pub)
	if err != nil || !restored {
		t.Fatalf("RestoreSnapshot() = %v, %v", restored, err)
	}
	if rec, err := fresh.Get("a"); err != nil || rec.Fingerprint != "1" {
		t.Errorf("restored record = %+v, %v", rec, err)
	}

	restored, err = RestoreSnapshot(ctx, fresh, pub)
	if err != nil || restored {
		t.Errorf("non-empty store should not be restored, got %v, %v", restored, err)
	}
}

func TestRestoreSnapshotMissing(t *testing.T) {
	restored, err := RestoreSnapshot(context.Background(), openStore(t), newMemoryPublisher())
	if err != nil || restored {
		t.Errorf("RestoreSnapshot() = %v, %v, want false, nil", restored, err)
	}
}
