package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tvcorpus/internal/align"
)

const runColumns = "align_run_id, episode_id, pivot_lang, params_json, summary_json, created_at, revision"

const linkColumns = "link_id, align_run_id, episode_id, segment_id, cue_id, cue_id_target, lang, role, confidence, status, manual"

// LinkQuery filters persisted links. Empty fields do not filter.
type LinkQuery struct {
	EpisodeID     string
	RunID         string
	Status        align.Status
	Role          align.Role
	Lang          string
	MinConfidence *float64
}

func scanRun(scanner rowScanner) (align.Run, error) {
	var (
		run         align.Run
		paramsJSON  string
		summaryJSON string
		createdRaw  string
	)
	if err := scanner.Scan(&run.ID, &run.EpisodeID, &run.PivotLang, &paramsJSON, &summaryJSON, &createdRaw, &run.Revision); err != nil {
		return align.Run{}, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return align.Run{}, fmt.Errorf("decode params of %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return align.Run{}, fmt.Errorf("decode summary of %s: %w", run.ID, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	return run, nil
}

func scanLink(scanner rowScanner) (align.Link, error) {
	var (
		link        align.Link
		segmentID   sql.NullString
		cueIDTarget sql.NullString
		role        string
		status      string
		confidence  sql.NullFloat64
		manual      int
	)
	if err := scanner.Scan(&link.ID, &link.RunID, &link.EpisodeID, &segmentID, &link.CueID, &cueIDTarget, &link.Lang, &role, &confidence, &status, &manual); err != nil {
		return align.Link{}, err
	}
	link.SegmentID = segmentID.String
	link.CueIDTarget = cueIDTarget.String
	link.Role = align.Role(role)
	link.Status = align.Status(status)
	link.Manual = manual != 0
	if confidence.Valid {
		link.Confidence = align.Confidence(confidence.Float64)
	}
	return link, nil
}

// CreateRun persists a run together with its full link set.
func (s *Store) CreateRun(ctx context.Context, run align.Run, links []align.Link) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM align_runs WHERE align_run_id = ?`, run.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check run: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("run %s: %w", run.ID, ErrConflict)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO align_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.EpisodeID, run.PivotLang, string(paramsJSON), string(summaryJSON), formatTime(run.CreatedAt), run.Revision,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return replaceLinks(ctx, tx, run.ID, links)
	})
}

// ReplaceLinks swaps a run's link set for a new snapshot and bumps the run's
// revision.
func (s *Store) ReplaceLinks(ctx context.Context, runID string, links []align.Link) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpRevision(ctx, tx, runID); err != nil {
			return err
		}
		return replaceLinks(ctx, tx, runID, links)
	})
}

func replaceLinks(ctx context.Context, tx *sql.Tx, runID string, links []align.Link) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM align_links WHERE align_run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO align_links (`+linkColumns+`, segment_ord, cue_ord) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare link insert: %w", err)
	}
	defer stmt.Close()
	for _, link := range links {
		if link.RunID != runID {
			return fmt.Errorf("link %s belongs to run %q, not %q", link.ID, link.RunID, runID)
		}
		if link.ID == "" {
			return fmt.Errorf("link without id in run %s", runID)
		}
		if err := link.Validate(); err != nil {
			return fmt.Errorf("link %s: %w", link.ID, err)
		}
		if link.Status == align.StatusManual {
			link.Status = align.StatusAccepted
			link.Manual = true
		}
		if _, err := stmt.ExecContext(ctx,
			link.ID,
			link.RunID,
			link.EpisodeID,
			nullableString(link.SegmentID),
			link.CueID,
			nullableString(link.CueIDTarget),
			link.Lang,
			string(link.Role),
			nullableFloat(link.Confidence),
			string(link.Status),
			boolToInt(link.Manual),
			ordinal(link.SegmentID),
			ordinal(link.CueID),
		); err != nil {
			return fmt.Errorf("insert link %s: %w", link.ID, err)
		}
	}
	return nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx, runID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE align_runs SET revision = revision + 1 WHERE align_run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return nil
}

// GetRun fetches one run.
func (s *Store) GetRun(ctx context.Context, runID string) (align.Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM align_runs WHERE align_run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return align.Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return align.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns an episode's runs, newest first. An empty episode id lists
// every run.
func (s *Store) ListRuns(ctx context.Context, episodeID string) ([]align.Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM align_runs`
	var args []any
	if episodeID != "" {
		query += ` WHERE episode_id = ?`
		args = append(args, episodeID)
	}
	query += ` ORDER BY created_at DESC, align_run_id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var runs []align.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// QueryLinks returns links matching q ordered by segment, pivot cue and
// language, comparing segment and cue ordinals numerically.
func (s *Store) QueryLinks(ctx context.Context, q LinkQuery) ([]align.Link, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if q.EpisodeID != "" {
		clauses = append(clauses, "episode_id = ?")
		args = append(args, q.EpisodeID)
	}
	if q.RunID != "" {
		clauses = append(clauses, "align_run_id = ?")
		args = append(args, q.RunID)
	}
	switch q.Status {
	case "":
	case align.StatusManual:
		clauses = append(clauses, "manual = 1")
	default:
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Role != "" {
		clauses = append(clauses, "role = ?")
		args = append(args, string(q.Role))
	}
	if q.Lang != "" {
		clauses = append(clauses, "lang = ?")
		args = append(args, q.Lang)
	}
	if q.MinConfidence != nil {
		clauses = append(clauses, "confidence IS NOT NULL AND confidence >= ?")
		args = append(args, *q.MinConfidence)
	}
	query := `SELECT ` + linkColumns + ` FROM align_links`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY segment_ord, segment_id, cue_ord, cue_id, lang, align_run_id, link_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()
	var links []align.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// GetLink fetches one link.
func (s *Store) GetLink(ctx context.Context, linkID string) (align.Link, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM align_links WHERE link_id = ?`, linkID)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return align.Link{}, fmt.Errorf("link %s: %w", linkID, ErrNotFound)
	}
	if err != nil {
		return align.Link{}, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// SetLinkStatus changes a link's review status and bumps its run's revision.
// Any status other than accepted drops the manual mark, so an edited link
// that is later rejected or reset reviews as that status.
func (s *Store) SetLinkStatus(ctx context.Context, linkID string, status align.Status) (align.Link, error) {
	if !status.Settable() {
		return align.Link{}, fmt.Errorf("status %q cannot be set directly", status)
	}
	var updated align.Link
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		link, err := getLinkTx(ctx, tx, linkID)
		if err != nil {
			return err
		}
		manual := link.Manual && status == align.StatusAccepted
		if _, err := tx.ExecContext(ctx,
			`UPDATE align_links SET status = ?, manual = ? WHERE link_id = ?`,
			string(status), boolToInt(manual), linkID,
		); err != nil {
			return fmt.Errorf("update link status: %w", err)
		}
		if err := bumpRevision(ctx, tx, link.RunID); err != nil {
			return err
		}
		link.Status = status
		link.Manual = manual
		updated = link
		return nil
	})
	if err != nil {
		return align.Link{}, err
	}
	return updated, nil
}

// LinkCueEdit names the keys to change on a link. Nil fields are kept.
// SegmentID only applies to target links, whose segment follows their pivot
// cue.
type LinkCueEdit struct {
	CueID       *string
	CueIDTarget *string
	SegmentID   *string
}

// UpdateLinkCues rewrites a link's cue keys, marks it as a manual edit and
// accepts it, bumping its run's revision.
func (s *Store) UpdateLinkCues(ctx context.Context, linkID string, edit LinkCueEdit) (align.Link, error) {
	var updated align.Link
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		link, err := getLinkTx(ctx, tx, linkID)
		if err != nil {
			return err
		}
		if edit.CueID != nil {
			link.CueID = *edit.CueID
		}
		if edit.CueIDTarget != nil {
			link.CueIDTarget = *edit.CueIDTarget
		}
		if edit.SegmentID != nil && link.Role == align.RoleTarget {
			link.SegmentID = *edit.SegmentID
		}
		link.Status = align.StatusAccepted
		link.Manual = true
		if err := link.Validate(); err != nil {
			return fmt.Errorf("link %s: %w", linkID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE align_links
             SET segment_id = ?, segment_ord = ?, cue_id = ?, cue_id_target = ?, cue_ord = ?, status = ?, manual = 1
             WHERE link_id = ?`,
			nullableString(link.SegmentID), ordinal(link.SegmentID), link.CueID, nullableString(link.CueIDTarget), ordinal(link.CueID), string(link.Status), linkID,
		); err != nil {
			return fmt.Errorf("update link cues: %w", err)
		}
		if err := bumpRevision(ctx, tx, link.RunID); err != nil {
			return err
		}
		updated = link
		return nil
	})
	if err != nil {
		return align.Link{}, err
	}
	return updated, nil
}

func getLinkTx(ctx context.Context, tx *sql.Tx, linkID string) (align.Link, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM align_links WHERE link_id = ?`, linkID)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return align.Link{}, fmt.Errorf("link %s: %w", linkID, ErrNotFound)
	}
	if err != nil {
		return align.Link{}, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// DeleteRun removes a run and, by cascade, its links.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM align_runs WHERE align_run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		return nil
	})
}

// DeleteRunsForEpisode removes every run of an episode and returns their ids.
func (s *Store) DeleteRunsForEpisode(ctx context.Context, episodeID string) ([]string, error) {
	var deleted []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = deleteEpisodeRuns(ctx, tx, episodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func deleteEpisodeRuns(ctx context.Context, tx *sql.Tx, episodeID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT align_run_id FROM align_runs WHERE episode_id = ? ORDER BY align_run_id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list episode runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM align_runs WHERE episode_id = ?`, episodeID); err != nil {
		return nil, fmt.Errorf("delete episode runs: %w", err)
	}
	return ids, nil
}

// RunStats counts a run's links by review status. Manual edits are counted
// under manual rather than accepted.
func (s *Store) RunStats(ctx context.Context, runID string) (map[align.Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN manual = 1 THEN 'manual' ELSE status END AS review, COUNT(1)
         FROM align_links WHERE align_run_id = ? GROUP BY review`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[align.Status]int, 4)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		stats[align.Status(status)] = count
	}
	return stats, rows.Err()
}
