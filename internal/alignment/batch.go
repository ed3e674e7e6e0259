package alignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tvcorpus/internal/align"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
)

// BatchRequest aligns several episodes with shared parameters. When Episodes
// is empty every episode with segments or cues is aligned.
type BatchRequest struct {
	Episodes []string
	Template CreateRunRequest
}

// BatchFailure records an episode that could not be aligned.
type BatchFailure struct {
	EpisodeID string `json:"episode_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// BatchResult lists completed runs and per-episode failures.
type BatchResult struct {
	CorrelationID string         `json:"correlation_id"`
	Runs          []align.Run    `json:"runs"`
	Failures      []BatchFailure `json:"failures,omitempty"`
	Canceled      bool           `json:"canceled"`
	Skipped       []string       `json:"skipped,omitempty"`
}

// AlignEpisodes runs CreateRun for each episode in turn. Cancellation is
// checked between episodes; an episode interrupted mid-run leaves no run,
// while runs completed earlier in the batch stay. Only one batch may run per
// data directory at a time.
func (s *Service) AlignEpisodes(ctx context.Context, req BatchRequest) (BatchResult, error) {
	const op = "align episodes"
	lockPath := s.cfg.LockPath()
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return BatchResult{}, services.Wrap(services.ErrIO, component, op, "acquire batch lock", err)
	}
	if !ok {
		return BatchResult{}, services.Wrap(services.ErrConflict, component, op,
			fmt.Sprintf("another batch holds %s", lockPath), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release batch lock", logging.Error(err))
		}
	}()

	result := BatchResult{CorrelationID: uuid.NewString()}
	ctx = services.WithRequestID(ctx, result.CorrelationID)
	logger := logging.WithContext(ctx, s.logger)

	episodes := req.Episodes
	if len(episodes) == 0 {
		episodes, err = s.store.Episodes(ctx)
		if err != nil {
			return result, storeError(op, "list episodes", err)
		}
	}

	started := time.Now()
	logger.Info("batch alignment started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("episodes", len(episodes)),
	)
	for i, episodeID := range episodes {
		if ctx.Err() != nil {
			result.Canceled = true
			result.Skipped = append(result.Skipped, episodes[i:]...)
			break
		}
		unit := req.Template
		unit.EpisodeID = episodeID
		run, err := s.CreateRun(ctx, unit)
		if err != nil {
			if errors.Is(err, services.ErrCanceled) {
				result.Canceled = true
				result.Skipped = append(result.Skipped, episodes[i:]...)
				break
			}
			result.Failures = append(result.Failures, BatchFailure{
				EpisodeID: episodeID,
				Kind:      services.Kind(err),
				Error:     err.Error(),
			})
			logging.WarnWithContext(logging.WithContext(services.WithEpisodeID(ctx, episodeID), s.logger),
				"episode alignment failed", "batch_episode_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "episode left without a new run"),
			)
			continue
		}
		result.Runs = append(result.Runs, run)
	}

	logger.Info("batch alignment finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("runs", len(result.Runs)),
		logging.Int("failures", len(result.Failures)),
		logging.Bool("canceled", result.Canceled),
		logging.Duration("elapsed", time.Since(started)),
	)
	if result.Canceled {
		return result, services.Wrap(services.ErrCanceled, component, op,
			fmt.Sprintf("stopped after %d of %d episodes", len(result.Runs)+len(result.Failures), len(episodes)), ctx.Err())
	}
	return result, nil
}
