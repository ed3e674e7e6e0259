package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tvcorpus/internal/corpus"
)

const segmentColumns = "segment_id, episode_id, kind, n, start_char, end_char, text, speaker_explicit"

const cueColumns = "cue_id, episode_id, lang, n, start_ms, end_ms, text_raw, text_clean"

func scanSegment(scanner rowScanner) (corpus.Segment, error) {
	var (
		seg     corpus.Segment
		kind    string
		speaker sql.NullString
	)
	if err := scanner.Scan(&seg.ID, &seg.EpisodeID, &kind, &seg.N, &seg.StartChar, &seg.EndChar, &seg.Text, &speaker); err != nil {
		return corpus.Segment{}, err
	}
	seg.Kind = corpus.SegmentKind(kind)
	seg.SpeakerExplicit = speaker.String
	return seg, nil
}

func scanCue(scanner rowScanner) (corpus.Cue, error) {
	var cue corpus.Cue
	if err := scanner.Scan(&cue.ID, &cue.EpisodeID, &cue.Lang, &cue.N, &cue.StartMs, &cue.EndMs, &cue.TextRaw, &cue.TextClean); err != nil {
		return corpus.Cue{}, err
	}
	return cue, nil
}

// ReplaceSegments swaps an episode's segments of one kind for a new set and
// deletes the episode's runs. It returns the ids of the deleted runs.
func (s *Store) ReplaceSegments(ctx context.Context, episodeID string, kind corpus.SegmentKind, segments []corpus.Segment) ([]string, error) {
	var invalidated []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE episode_id = ? AND kind = ?`, episodeID, string(kind)); err != nil {
			return fmt.Errorf("delete segments: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (`+segmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare segment insert: %w", err)
		}
		defer stmt.Close()
		for _, seg := range segments {
			if seg.EpisodeID != episodeID || seg.Kind != kind {
				return fmt.Errorf("segment %s does not belong to %s/%s", seg.ID, episodeID, kind)
			}
			if _, err := stmt.ExecContext(ctx, seg.ID, seg.EpisodeID, string(seg.Kind), seg.N, seg.StartChar, seg.EndChar, seg.Text, nullableString(seg.SpeakerExplicit)); err != nil {
				return fmt.Errorf("insert segment %s: %w", seg.ID, err)
			}
		}
		invalidated, err = deleteEpisodeRuns(ctx, tx, episodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invalidated, nil
}

// GetSegments returns an episode's segments of one kind in order.
func (s *Store) GetSegments(ctx context.Context, episodeID string, kind corpus.SegmentKind) ([]corpus.Segment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE episode_id = ? AND kind = ? ORDER BY n`,
		episodeID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	var segments []corpus.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// GetSegment fetches one segment by id.
func (s *Store) GetSegment(ctx context.Context, segmentID string) (corpus.Segment, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE segment_id = ?`, segmentID)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Segment{}, fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}
	if err != nil {
		return corpus.Segment{}, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// ReplaceCues records a subtitle track and swaps its cues for a new set,
// deleting the episode's runs. It returns the ids of the deleted runs.
func (s *Store) ReplaceCues(ctx context.Context, track corpus.Track, cues []corpus.Cue) ([]string, error) {
	var invalidated []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subtitle_tracks (episode_id, lang, format, path, imported_at) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT (episode_id, lang) DO UPDATE SET format = excluded.format, path = excluded.path, imported_at = excluded.imported_at`,
			track.EpisodeID, track.Lang, track.Format, track.Path, formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("upsert track: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cues WHERE episode_id = ? AND lang = ?`, track.EpisodeID, track.Lang); err != nil {
			return fmt.Errorf("delete cues: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO cues (`+cueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare cue insert: %w", err)
		}
		defer stmt.Close()
		for _, cue := range cues {
			if cue.EpisodeID != track.EpisodeID || cue.Lang != track.Lang {
				return fmt.Errorf("cue %s does not belong to %s/%s", cue.ID, track.EpisodeID, track.Lang)
			}
			if _, err := stmt.ExecContext(ctx, cue.ID, cue.EpisodeID, cue.Lang, cue.N, cue.StartMs, cue.EndMs, cue.TextRaw, cue.TextClean); err != nil {
				return fmt.Errorf("insert cue %s: %w", cue.ID, err)
			}
		}
		invalidated, err = deleteEpisodeRuns(ctx, tx, track.EpisodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invalidated, nil
}

// RemoveTrack deletes a subtitle track with its cues and the episode's runs.
func (s *Store) RemoveTrack(ctx context.Context, episodeID, lang string) ([]string, error) {
	var invalidated []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM subtitle_tracks WHERE episode_id = ? AND lang = ?`, episodeID, lang)
		if err != nil {
			return fmt.Errorf("delete track: %w", err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return fmt.Errorf("track %s/%s: %w", episodeID, lang, err)
		}
		invalidated, err = deleteEpisodeRuns(ctx, tx, episodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invalidated, nil
}

// GetCues returns a track's cues in order.
func (s *Store) GetCues(ctx context.Context, episodeID, lang string) ([]corpus.Cue, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cueColumns+` FROM cues WHERE episode_id = ? AND lang = ? ORDER BY n`,
		episodeID, lang,
	)
	if err != nil {
		return nil, fmt.Errorf("query cues: %w", err)
	}
	defer rows.Close()
	var cues []corpus.Cue
	for rows.Next() {
		cue, err := scanCue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cue: %w", err)
		}
		cues = append(cues, cue)
	}
	return cues, rows.Err()
}

// GetCue fetches one cue by id.
func (s *Store) GetCue(ctx context.Context, cueID string) (corpus.Cue, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+cueColumns+` FROM cues WHERE cue_id = ?`, cueID)
	cue, err := scanCue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Cue{}, fmt.Errorf("cue %s: %w", cueID, ErrNotFound)
	}
	if err != nil {
		return corpus.Cue{}, fmt.Errorf("get cue: %w", err)
	}
	return cue, nil
}

// GetTrack fetches the track record for one language of an episode.
func (s *Store) GetTrack(ctx context.Context, episodeID, lang string) (corpus.Track, error) {
	ctx = ensureContext(ctx)
	var track corpus.Track
	err := s.db.QueryRowContext(ctx,
		`SELECT episode_id, lang, format, path FROM subtitle_tracks WHERE episode_id = ? AND lang = ?`,
		episodeID, lang,
	).Scan(&track.EpisodeID, &track.Lang, &track.Format, &track.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Track{}, fmt.Errorf("track %s/%s: %w", episodeID, lang, ErrNotFound)
	}
	if err != nil {
		return corpus.Track{}, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// ListTracks returns an episode's tracks ordered by language.
func (s *Store) ListTracks(ctx context.Context, episodeID string) ([]corpus.Track, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, lang, format, path FROM subtitle_tracks WHERE episode_id = ? ORDER BY lang`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()
	var tracks []corpus.Track
	for rows.Next() {
		var track corpus.Track
		if err := rows.Scan(&track.EpisodeID, &track.Lang, &track.Format, &track.Path); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// Episodes lists every episode with segments or subtitle tracks.
func (s *Store) Episodes(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id FROM segments UNION SELECT episode_id FROM subtitle_tracks ORDER BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()
	var episodes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, id)
	}
	return episodes, rows.Err()
}
