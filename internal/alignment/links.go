package alignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tvcorpus/internal/align"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
)

// LinkQuery filters links of an episode. EpisodeID is required.
type LinkQuery = store.LinkQuery

// Query returns persisted links ordered by segment, cue and language.
func (s *Service) Query(ctx context.Context, q LinkQuery) ([]align.Link, error) {
	const op = "query links"
	q.EpisodeID = strings.TrimSpace(q.EpisodeID)
	if q.EpisodeID == "" {
		return nil, services.Wrap(services.ErrValidation, component, op, "episode id is required", nil)
	}
	if q.MinConfidence != nil && (*q.MinConfidence < 0 || *q.MinConfidence > 1) {
		return nil, services.Wrap(services.ErrValidation, component, op,
			fmt.Sprintf("min confidence %v out of range [0,1]", *q.MinConfidence), nil)
	}
	if q.RunID != "" {
		run, err := s.store.GetRun(ctx, q.RunID)
		if err != nil {
			return nil, storeError(op, "run "+q.RunID, err)
		}
		if run.EpisodeID != q.EpisodeID {
			return nil, services.Wrap(services.ErrNotFound, component, op,
				fmt.Sprintf("run %s does not belong to episode %s", q.RunID, q.EpisodeID), nil)
		}
	}
	links, err := s.store.QueryLinks(ctx, q)
	if err != nil {
		return nil, storeError(op, "", err)
	}
	return links, nil
}

// SetStatus toggles a link between auto, accepted and rejected. Manual status
// is only reachable through EditLinkCues.
func (s *Service) SetStatus(ctx context.Context, linkID string, status align.Status) (align.Link, error) {
	const op = "set status"
	if !status.Settable() {
		return align.Link{}, services.Wrap(services.ErrValidation, component, op,
			fmt.Sprintf("status %q cannot be set directly", status), nil)
	}
	link, err := s.store.SetLinkStatus(ctx, strings.TrimSpace(linkID), status)
	if err != nil {
		return align.Link{}, storeError(op, "link "+linkID, err)
	}
	ctx = services.WithRunID(services.WithEpisodeID(ctx, link.EpisodeID), link.RunID)
	logging.WithContext(ctx, s.logger).Info(
		"link status changed",
		logging.String(logging.FieldEventType, "link_status"),
		logging.String(logging.FieldLinkID, link.ID),
		logging.String("status", string(status)),
	)
	s.refreshAudit(ctx, link.RunID)
	return link, nil
}

// EditLinkCues re-points a link at different cues. The new cues must exist in
// the link's episode and language. The link becomes accepted and manual.
func (s *Service) EditLinkCues(ctx context.Context, linkID string, cueID, cueIDTarget *string) (align.Link, error) {
	const op = "edit link cues"
	linkID = strings.TrimSpace(linkID)
	if cueID == nil && cueIDTarget == nil {
		return align.Link{}, services.Wrap(services.ErrValidation, component, op, "no cue given", nil)
	}
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return align.Link{}, storeError(op, "link "+linkID, err)
	}
	run, err := s.store.GetRun(ctx, link.RunID)
	if err != nil {
		return align.Link{}, storeError(op, "run "+link.RunID, err)
	}

	edit := store.LinkCueEdit{}
	if cueID != nil {
		id := strings.TrimSpace(*cueID)
		if err := s.checkCue(ctx, id, link.EpisodeID, run.PivotLang); err != nil {
			return align.Link{}, err
		}
		edit.CueID = &id
		if link.Role == align.RoleTarget {
			segmentID, err := s.segmentForPivotCue(ctx, link.RunID, id)
			if err != nil {
				return align.Link{}, err
			}
			edit.SegmentID = &segmentID
		}
	}
	if cueIDTarget != nil {
		if link.Role != align.RoleTarget {
			return align.Link{}, services.Wrap(services.ErrValidation, component, op, "pivot links have no target cue", nil)
		}
		id := strings.TrimSpace(*cueIDTarget)
		if err := s.checkCue(ctx, id, link.EpisodeID, link.Lang); err != nil {
			return align.Link{}, err
		}
		edit.CueIDTarget = &id
	}

	updated, err := s.store.UpdateLinkCues(ctx, linkID, edit)
	if err != nil {
		return align.Link{}, storeError(op, "link "+linkID, err)
	}
	ctx = services.WithRunID(services.WithEpisodeID(ctx, updated.EpisodeID), updated.RunID)
	logging.WithContext(ctx, s.logger).Info(
		"link cues edited",
		logging.String(logging.FieldEventType, "link_manual_edit"),
		logging.String(logging.FieldLinkID, updated.ID),
		logging.String("cue_id", updated.CueID),
		logging.String("cue_id_target", updated.CueIDTarget),
	)
	s.refreshAudit(ctx, updated.RunID)
	return updated, nil
}

func (s *Service) checkCue(ctx context.Context, cueID, episodeID, lang string) error {
	const op = "edit link cues"
	cue, err := s.store.GetCue(ctx, cueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return services.Wrap(services.ErrValidation, component, op, fmt.Sprintf("cue %s does not exist", cueID), nil)
		}
		return storeError(op, "cue "+cueID, err)
	}
	if cue.EpisodeID != episodeID {
		return services.Wrap(services.ErrValidation, component, op,
			fmt.Sprintf("cue %s belongs to episode %s, not %s", cueID, cue.EpisodeID, episodeID), nil)
	}
	if cue.Lang != lang {
		return services.Wrap(services.ErrValidation, component, op,
			fmt.Sprintf("cue %s is %s, expected %s", cueID, cue.Lang, lang), nil)
	}
	return nil
}

// segmentForPivotCue returns the segment of the first pivot link bound to
// cueID in the run, or "" when none is.
func (s *Service) segmentForPivotCue(ctx context.Context, runID, cueID string) (string, error) {
	pivots, err := s.store.QueryLinks(ctx, store.LinkQuery{RunID: runID, Role: align.RolePivot})
	if err != nil {
		return "", storeError("edit link cues", "load pivot links", err)
	}
	for _, link := range pivots {
		if link.CueID == cueID {
			return link.SegmentID, nil
		}
	}
	return "", nil
}

// DeleteRun removes a run, its links and its documents.
func (s *Service) DeleteRun(ctx context.Context, runID string) error {
	const op = "delete run"
	runID = strings.TrimSpace(runID)
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return storeError(op, "run "+runID, err)
	}
	if err := s.store.DeleteRun(ctx, runID); err != nil {
		return storeError(op, "run "+runID, err)
	}
	s.purge(ctx, run.EpisodeID, []string{runID})
	ctx = services.WithRunID(services.WithEpisodeID(ctx, run.EpisodeID), runID)
	logging.WithContext(ctx, s.logger).Info("alignment run deleted", logging.String(logging.FieldEventType, "run_deleted"))
	return nil
}

// DeleteRunsForEpisode removes every run of an episode and returns their ids.
func (s *Service) DeleteRunsForEpisode(ctx context.Context, episodeID string) ([]string, error) {
	const op = "delete episode runs"
	episodeID = strings.TrimSpace(episodeID)
	if err := corpus.ValidateEpisodeID(episodeID); err != nil {
		return nil, services.Wrap(services.ErrValidation, component, op, "invalid episode", err)
	}
	removed, err := s.store.DeleteRunsForEpisode(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "episode "+episodeID, err)
	}
	s.invalidated(ctx, episodeID, removed, "runs deleted")
	return removed, nil
}

// invalidated purges documents of deleted runs and logs the cascade.
func (s *Service) invalidated(ctx context.Context, episodeID string, runIDs []string, reason string) {
	if len(runIDs) == 0 {
		return
	}
	s.purge(ctx, episodeID, runIDs)
	ctx = services.WithEpisodeID(ctx, episodeID)
	logging.WithContext(ctx, s.logger).Info(
		"alignment runs invalidated",
		logging.String(logging.FieldEventType, "runs_invalidated"),
		logging.String("reason", reason),
		logging.Int("runs", len(runIDs)),
	)
}
