package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"tvcorpus/internal/corpus"
)

// UpsertCharacter inserts or updates a catalog entry.
func (s *Store) UpsertCharacter(ctx context.Context, character corpus.Character) error {
	names := character.Names
	if names == nil {
		names = map[string]string{}
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal character names: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO characters (character_id, canonical, names_json) VALUES (?, ?, ?)
             ON CONFLICT (character_id) DO UPDATE SET canonical = excluded.canonical, names_json = excluded.names_json`,
			character.ID, character.Canonical, string(namesJSON),
		)
		if err != nil {
			return fmt.Errorf("upsert character %s: %w", character.ID, err)
		}
		return nil
	})
}

func scanCharacter(scanner rowScanner) (corpus.Character, error) {
	var (
		character corpus.Character
		namesJSON string
	)
	if err := scanner.Scan(&character.ID, &character.Canonical, &namesJSON); err != nil {
		return corpus.Character{}, err
	}
	character.Names = map[string]string{}
	if namesJSON != "" {
		if err := json.Unmarshal([]byte(namesJSON), &character.Names); err != nil {
			return corpus.Character{}, fmt.Errorf("decode names of %s: %w", character.ID, err)
		}
	}
	return character, nil
}

// GetCharacter fetches one catalog entry.
func (s *Store) GetCharacter(ctx context.Context, characterID string) (corpus.Character, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT character_id, canonical, names_json FROM characters WHERE character_id = ?`, characterID)
	character, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Character{}, fmt.Errorf("character %s: %w", characterID, ErrNotFound)
	}
	if err != nil {
		return corpus.Character{}, fmt.Errorf("get character: %w", err)
	}
	return character, nil
}

// ListCharacters returns the catalog ordered by id.
func (s *Store) ListCharacters(ctx context.Context) ([]corpus.Character, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT character_id, canonical, names_json FROM characters ORDER BY character_id`)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()
	var characters []corpus.Character
	for rows.Next() {
		character, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		characters = append(characters, character)
	}
	return characters, rows.Err()
}

// SetAssignment binds a segment or cue to a character. An empty character
// id removes the binding.
func (s *Store) SetAssignment(ctx context.Context, assignment corpus.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if assignment.CharacterID == "" {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM character_assignments WHERE episode_id = ? AND source_type = ? AND source_id = ?`,
				assignment.EpisodeID, string(assignment.SourceType), assignment.SourceID,
			)
			if err != nil {
				return fmt.Errorf("delete assignment: %w", err)
			}
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO character_assignments (episode_id, source_type, source_id, character_id) VALUES (?, ?, ?, ?)
             ON CONFLICT (episode_id, source_type, source_id) DO UPDATE SET character_id = excluded.character_id`,
			assignment.EpisodeID, string(assignment.SourceType), assignment.SourceID, assignment.CharacterID,
		)
		if err != nil {
			return fmt.Errorf("upsert assignment %s: %w", assignment.SourceID, err)
		}
		return nil
	})
}

// Assignments returns an episode's character assignments in a stable order.
func (s *Store) Assignments(ctx context.Context, episodeID string) ([]corpus.Assignment, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, source_type, source_id, character_id FROM character_assignments
         WHERE episode_id = ? ORDER BY source_type, source_id`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	var list []corpus.Assignment
	for rows.Next() {
		var (
			a          corpus.Assignment
			sourceType string
		)
		if err := rows.Scan(&a.EpisodeID, &sourceType, &a.SourceID, &a.CharacterID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.SourceType = corpus.SourceType(sourceType)
		list = append(list, a)
	}
	return list, rows.Err()
}

// AssignmentsDigest fingerprints an episode's assignments together with the
// names of the characters they reference, so cached views can detect that
// speaker resolution would change.
func (s *Store) AssignmentsDigest(ctx context.Context, episodeID string) (string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.source_type, a.source_id, a.character_id, c.canonical, c.names_json
         FROM character_assignments a JOIN characters c ON c.character_id = a.character_id
         WHERE a.episode_id = ? ORDER BY a.source_type, a.source_id`,
		episodeID,
	)
	if err != nil {
		return "", fmt.Errorf("query assignment digest: %w", err)
	}
	defer rows.Close()
	hash := sha256.New()
	for rows.Next() {
		var sourceType, sourceID, characterID, canonical, names string
		if err := rows.Scan(&sourceType, &sourceID, &characterID, &canonical, &names); err != nil {
			return "", fmt.Errorf("scan assignment digest: %w", err)
		}
		fmt.Fprintf(hash, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1e", sourceType, sourceID, characterID, canonical, names)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CorpusDigest fingerprints the text an episode's views are built from: each
// segment's text and explicit speaker and each cue's timing and clean text.
// Propagation rewrites these in place without touching run revisions.
func (s *Store) CorpusDigest(ctx context.Context, episodeID string) (string, error) {
	ctx = ensureContext(ctx)
	hash := sha256.New()

	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, text, COALESCE(speaker_explicit, '')
         FROM segments WHERE episode_id = ? ORDER BY segment_id`,
		episodeID,
	)
	if err != nil {
		return "", fmt.Errorf("query segment digest: %w", err)
	}
	for rows.Next() {
		var id, text, speaker string
		if err := rows.Scan(&id, &text, &speaker); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan segment digest: %w", err)
		}
		fmt.Fprintf(hash, "s\x1f%s\x1f%s\x1f%s\x1e", id, text, speaker)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT cue_id, start_ms, end_ms, text_clean
         FROM cues WHERE episode_id = ? ORDER BY cue_id`,
		episodeID,
	)
	if err != nil {
		return "", fmt.Errorf("query cue digest: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         string
			start, end int64
			text       string
		)
		if err := rows.Scan(&id, &start, &end, &text); err != nil {
			return "", fmt.Errorf("scan cue digest: %w", err)
		}
		fmt.Fprintf(hash, "c\x1f%s\x1f%d\x1f%d\x1f%s\x1e", id, start, end, text)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
