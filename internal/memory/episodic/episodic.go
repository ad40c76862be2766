// Package episodic implements the Episodic (Tier 3) memory store: an
// immutable, write-once blob store whose bucket/key structure exposes
// date/agent for cheap listing, with a 90-day retention sweep.
//
// Grounded on the teacher's local file archiver pattern for compliance
// archives, generalized from "expired trace batch" to
// "any write-once blob keyed by path".
package episodic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultRetention is the 90-day window named in the memory tier design.
const DefaultRetention = 90 * 24 * time.Hour

// Store is a local-filesystem write-once blob store. Keys are treated as
// relative paths beneath basePath and must already contain a date
// component, e.g. "emails/2026-07-30/CHITTY-EVNT-001-AB", so retention
// sweeps and listings can operate on the path alone.
type Store struct {
	basePath  string
	retention time.Duration
}

// New builds an episodic store rooted at basePath.
func New(basePath string, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{basePath: basePath, retention: retention}
}

// Put writes a blob exactly once; it returns an error if the key already
// exists, since episodic objects are immutable write-once.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	fpath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(fpath); err == nil {
		return fmt.Errorf("episodic key already written: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return fmt.Errorf("create episodic dir: %w", err)
	}
	return os.WriteFile(fpath, data, 0o644)
}

// Get reads a blob by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(key)))
}

// List returns all keys beneath prefix, for cheap date/agent listing.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.basePath, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(s.basePath, path)
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// EmailKey formats the documented email blob key.
func EmailKey(date time.Time, chittyID string) string {
	return fmt.Sprintf("emails/%s/%s", date.Format("2006-01-02"), chittyID)
}

// EvidenceKey formats the documented evidence blob key.
func EvidenceKey(date time.Time, chittyID string) string {
	return fmt.Sprintf("evidence/%s/%s", date.Format("2006-01-02"), chittyID)
}

// EpisodeKey formats the documented agent-episode blob key.
func EpisodeKey(agentID string, date time.Time, sessionID string) string {
	return fmt.Sprintf("episodes/%s/%s/%s.json", agentID, date.Format("2006-01-02"), sessionID)
}

// Sweep deletes every blob older than the retention window, identified by
// the yyyy-mm-dd path component. It returns the number of objects purged.
func (s *Store) Sweep(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	purged := 0
	for _, key := range keys {
		d, ok := dateFromKey(key)
		if !ok || d.After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(key))); err == nil {
			purged++
		}
	}
	return purged, nil
}

func dateFromKey(key string) (time.Time, bool) {
	parts := strings.Split(key, "/")
	for _, p := range parts {
		if d, err := time.Parse("2006-01-02", p); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
