// Package artifacts mirrors alignment runs to JSON documents on disk: one
// audit document per run (the run record and its link snapshot) and an
// optional grouping cache document. Both live under
// <artifacts_dir>/<episode>/ and are for inspection only; the database stays
// the source of truth.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tvcorpus/internal/align"
	"tvcorpus/internal/fileutil"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/textutil"
)

// ErrMissing reports that a document has not been written.
var ErrMissing = errors.New("artifact missing")

// Audit is the on-disk mirror of a run.
type Audit struct {
	Run       align.Run    `json:"run"`
	Links     []align.Link `json:"links"`
	WrittenAt time.Time    `json:"written_at"`
}

// Store reads and writes run documents under a root directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New initialises a document store rooted at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifacts directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &Store{dir: dir, logger: logging.NewComponentLogger(logger, "artifacts")}, nil
}

// Dir exposes the backing directory for inspection.
func (s *Store) Dir() string {
	return s.dir
}

// AuditPath returns the audit document location for a run.
func (s *Store) AuditPath(episodeID, runID string) string {
	return filepath.Join(s.episodeDir(episodeID), textutil.SanitizeToken(runID)+".audit.json")
}

// GroupingPath returns the grouping cache location for a run.
func (s *Store) GroupingPath(episodeID, runID string) string {
	return filepath.Join(s.episodeDir(episodeID), textutil.SanitizeToken(runID)+".grouping.json")
}

func (s *Store) episodeDir(episodeID string) string {
	return filepath.Join(s.dir, textutil.SanitizeToken(episodeID))
}

// WriteAudit mirrors a run and its current links.
func (s *Store) WriteAudit(run align.Run, links []align.Link) error {
	if links == nil {
		links = []align.Link{}
	}
	doc := Audit{Run: run, Links: links, WrittenAt: time.Now().UTC()}
	path := s.AuditPath(run.EpisodeID, run.ID)
	if err := writeJSON(path, doc); err != nil {
		return err
	}
	s.logger.Debug("audit document written",
		logging.String(logging.FieldRunID, run.ID),
		logging.String("path", path),
		logging.Int("links", len(links)),
	)
	return nil
}

// ReadAudit loads a run's audit document.
func (s *Store) ReadAudit(episodeID, runID string) (Audit, error) {
	var doc Audit
	if err := readJSON(s.AuditPath(episodeID, runID), &doc); err != nil {
		return Audit{}, err
	}
	return doc, nil
}

// WriteGrouping stores a grouping cache document.
func (s *Store) WriteGrouping(episodeID, runID string, doc any) error {
	return writeJSON(s.GroupingPath(episodeID, runID), doc)
}

// ReadGrouping decodes a grouping cache document into doc. A missing file
// returns ErrMissing; a corrupt file returns the decode error.
func (s *Store) ReadGrouping(episodeID, runID string, doc any) error {
	return readJSON(s.GroupingPath(episodeID, runID), doc)
}

// Purge removes every document of the given runs.
func (s *Store) Purge(episodeID string, runIDs ...string) error {
	var errs []error
	for _, runID := range runIDs {
		for _, path := range []string{s.AuditPath(episodeID, runID), s.GroupingPath(episodeID, runID)} {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			}
		}
	}
	if len(runIDs) > 0 {
		s.logger.Debug("run documents purged",
			logging.String(logging.FieldEpisodeID, episodeID),
			logging.Int("runs", len(runIDs)),
		)
	}
	return errors.Join(errs...)
}

func writeJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, doc any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrMissing
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
