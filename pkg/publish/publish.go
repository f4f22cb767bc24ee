// Package publish ships rendered pipelines to object storage, using the
// catalog to skip pipelines whose rendering did not change.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siqueiraa/flycs/pkg/catalog"
	"github.com/siqueiraa/flycs/pkg/manifest"
)

const (
	// ManifestKey holds the full document.
	ManifestKey = "manifest.json"
	// SnapshotKey holds the catalog backup.
	SnapshotKey = "catalog.bak"
)

var ErrNotFound = errors.New("object not found")

// Publisher stores and retrieves objects by key.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) (string, error)
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// Options tune a Sync run.
type Options struct {
	// Prune removes catalog entries for pipelines no longer in the document.
	Prune bool
	// Snapshot uploads a catalog backup after a successful run.
	Snapshot bool
	// Now stamps catalog records. Defaults to the current time.
	Now time.Time
}

// Result lists pipeline names by outcome.
type Result struct {
	Uploaded  []string
	Unchanged []string
	Pruned    []string
}

// Changed reports whether the run modified the published state.
func (r Result) Changed() bool {
	return len(r.Uploaded) > 0 || len(r.Pruned) > 0
}

// PipelineKey is the object key of one rendered pipeline.
func PipelineKey(name string) string {
	return name + ".json"
}

// Sync uploads every entry of doc whose fingerprint differs from the catalog,
// then records it. The catalog is only updated after a successful upload, so
// a failed run is retried in full next time.
func Sync(ctx context.Context, store *catalog.Store, pub Publisher, doc *manifest.Document, opts Options) (Result, error) {
	var res Result
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	names := make([]string, 0, len(doc.Pipelines))
	for _, entry := range doc.Pipelines {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		names = append(names, entry.Name)

		prev, err := store.Get(entry.Name)
		switch {
		case err == nil && prev.Fingerprint == entry.Fingerprint:
			res.Unchanged = append(res.Unchanged, entry.Name)
			continue
		case err != nil && !errors.Is(err, catalog.ErrNotFound):
			return res, fmt.Errorf("read catalog for %s: %w", entry.Name, err)
		}

		payload, err := entry.JSON()
		if err != nil {
			return res, fmt.Errorf("encode %s: %w", entry.Name, err)
		}
		if _, err := pub.Publish(ctx, PipelineKey(entry.Name), payload); err != nil {
			return res, err
		}
		if _, err := store.Put(entry.Name, entry.Fingerprint, payload, now); err != nil {
			return res, fmt.Errorf("record %s: %w", entry.Name, err)
		}
		res.Uploaded = append(res.Uploaded, entry.Name)
		log.Info().Str("component", "publish").Str("pipeline", entry.Name).Msg("Published pipeline")
	}

	if opts.Prune {
		pruned, err := store.Prune(names)
		if err != nil {
			return res, fmt.Errorf("prune catalog: %w", err)
		}
		res.Pruned = pruned
	}

	if res.Changed() {
		body, err := doc.EncodeJSON()
		if err != nil {
			return res, fmt.Errorf("encode manifest: %w", err)
		}
		if _, err := pub.Publish(ctx, ManifestKey, body); err != nil {
			return res, err
		}
	}

	if opts.Snapshot && res.Changed() {
		if err := UploadSnapshot(ctx, store, pub); err != nil {
			return res, err
		}
	}

	log.Info().
		Str("component", "publish").
		Int("uploaded", len(res.Uploaded)).
		Int("unchanged", len(res.Unchanged)).
		Int("pruned", len(res.Pruned)).
		Msg("Sync complete")
	return res, nil
}

// UploadSnapshot writes a backup of the catalog under SnapshotKey.
func UploadSnapshot(ctx context.Context, store *catalog.Store, pub Publisher) error {
	var buf bytes.Buffer
	if err := store.Backup(&buf); err != nil {
		return fmt.Errorf("backup catalog: %w", err)
	}
	_, err := pub.Publish(ctx, SnapshotKey, buf.Bytes())
	return err
}

// RestoreSnapshot loads the published catalog backup into an empty store.
// It reports whether a snapshot was restored; a non-empty store or a missing
// snapshot is left alone.
func RestoreSnapshot(ctx context.Context, store *catalog.Store, pub Publisher) (bool, error) {
	empty, err := store.IsEmpty()
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}

	body, err := pub.Fetch(ctx, SnapshotKey)
	if errors.Is(err, ErrNotFound) {
		log.Debug().Str("component", "publish").Msg("No catalog snapshot found")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer body.Close()

	log.Info().Str("component", "publish").Msg("Restoring catalog snapshot")
	if err := store.Restore(body); err != nil {
		return false, fmt.Errorf("restore catalog: %w", err)
	}
	return true, nil
}
