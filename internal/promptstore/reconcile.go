package promptstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aisight/mitsuke/internal/models"
)

// reconcile brings the indexes in line with the directory tree: rows whose
// directory vanished are dropped, and directories missing from the index
// (e.g. restored from a backup) are re-indexed. Metadata files are read with
// bounded concurrency.
func (s *Store) reconcile(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// A directory without metadata.json is an aborted save; skip it.
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), metadataFile)); err != nil {
			continue
		}
		onDisk[e.Name()] = true
	}

	indexed, err := s.index.allIDs(ctx)
	if err != nil {
		return err
	}
	indexedSet := make(map[string]bool, len(indexed))
	for _, id := range indexed {
		indexedSet[id] = true
		if !onDisk[id] {
			s.forget(ctx, id)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := range onDisk {
		if indexedSet[id] {
			continue
		}
		id := id
		g.Go(func() error {
			metadataJSON, err := os.ReadFile(filepath.Join(s.root, id, metadataFile))
			if err != nil {
				return err
			}
			var rec models.VisualPromptRecord
			if err := json.Unmarshal(metadataJSON, &rec); err != nil {
				s.logger.Warn("skipping memory with corrupt metadata",
					zap.String("memory_id", id), zap.Error(err))
				return nil
			}
			if err := s.index.insert(gctx, &rec); err != nil {
				return err
			}
			if err := s.names.add(id, rec.ObjectName); err != nil {
				return err
			}
			s.logger.Debug("memory re-indexed", zap.String("memory_id", id))
			return nil
		})
	}
	return g.Wait()
}
