package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WriteTx is an open write transaction over segment speakers and cue text.
// The caller must Commit or Rollback it and must not call other Store
// methods while it is open.
type WriteTx struct {
	tx   *sql.Tx
	done bool
}

// BeginWrite opens a write transaction.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTx, error) {
	ctx = ensureContext(ctx)
	var tx *sql.Tx
	err := retryOnBusy(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return nil, fmt.Errorf("begin write tx: %w", err)
	}
	return &WriteTx{tx: tx}, nil
}

// UpdateSegmentSpeaker sets a segment's explicit speaker.
func (w *WriteTx) UpdateSegmentSpeaker(ctx context.Context, segmentID, speaker string) error {
	res, err := w.tx.ExecContext(ctx, `UPDATE segments SET speaker_explicit = ? WHERE segment_id = ?`, nullableString(speaker), segmentID)
	if err != nil {
		return fmt.Errorf("update segment speaker: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return fmt.Errorf("segment %s: %w", segmentID, err)
	}
	return nil
}

// UpdateCueTextClean sets a cue's cleaned text.
func (w *WriteTx) UpdateCueTextClean(ctx context.Context, cueID, text string) error {
	res, err := w.tx.ExecContext(ctx, `UPDATE cues SET text_clean = ? WHERE cue_id = ?`, text, cueID)
	if err != nil {
		return fmt.Errorf("update cue text: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return fmt.Errorf("cue %s: %w", cueID, err)
	}
	return nil
}

// Commit commits the transaction.
func (w *WriteTx) Commit() error {
	if w.done {
		return errors.New("write tx already finished")
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit write tx: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit or Rollback.
func (w *WriteTx) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback write tx: %w", err)
	}
	return nil
}
