package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IngestRecord is the external bulk-load format. Files contain a list of
// these; embeddings are computed during ingestion, never supplied.
type IngestRecord struct {
	Title    string         `yaml:"title" json:"title"`
	Content  string         `yaml:"content" json:"content"`
	Category string         `yaml:"category,omitempty" json:"category,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// IngestFile loads records from a YAML or JSON file into the index.
// Records missing a title or content are skipped, matching the original
// dataset loader.
func (ix *Index) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read ingest file: %w", err)
	}

	var records []IngestRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return 0, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return 0, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	loaded := 0
	for _, rec := range records {
		if rec.Title == "" || rec.Content == "" {
			continue
		}
		if _, err := ix.AddToKnowledgeBase(ctx, rec.Title, rec.Content, rec.Category, rec.Metadata); err != nil {
			return loaded, err
		}
		loaded++
	}

	slog.Info("ingested knowledge file",
		slog.String("path", path),
		slog.Int("records", loaded))
	return loaded, nil
}

// IngestDir loads every matching file in a directory. When skipIfNonEmpty is
// set and the index already holds records, the load is skipped entirely so
// repeated startup runs do not duplicate the seed data.
func (ix *Index) IngestDir(ctx context.Context, dir string, patterns []string, skipIfNonEmpty bool) (int, error) {
	if skipIfNonEmpty {
		count, err := ix.store.Count(ctx)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			slog.Warn("knowledge base already contains data, skipping load",
				slog.Int("existing", count))
			return 0, nil
		}
	}

	matcher, err := newPatternMatcher(patterns)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read ingest dir: %w", err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !matcher.matches(entry.Name()) {
			continue
		}
		n, err := ix.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
