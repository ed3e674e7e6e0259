package alignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tvcorpus/internal/align"
	"tvcorpus/internal/artifacts"
	"tvcorpus/internal/config"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/language"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
)

const component = "alignment"

// Service creates, reviews and invalidates alignment runs.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	docs   *artifacts.Store
	logger *slog.Logger
	now    func() time.Time

	segments align.SegmentCueAligner
	cues     align.CueCueAligner
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the clock used to stamp new runs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the run service.
func New(cfg *config.Config, st *store.Store, docs *artifacts.Store, logger *slog.Logger, opts ...Option) *Service {
	window := align.DefaultWindow
	if cfg != nil && cfg.Alignment.SearchWindow > 0 {
		window = cfg.Alignment.SearchWindow
	}
	svc := &Service{
		cfg:      cfg,
		store:    st,
		docs:     docs,
		logger:   logging.NewComponentLogger(logger, component),
		now:      time.Now,
		segments: align.SegmentCueAligner{Window: window},
		cues:     align.CueCueAligner{Window: window},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateRunRequest describes a run to compute. Unset fields fall back to the
// [alignment] configuration.
type CreateRunRequest struct {
	EpisodeID     string
	PivotLang     string
	TargetLangs   []string
	MinConfidence *float64
	UseSimilarity *bool
	SegmentKind   string
}

type runPlan struct {
	episodeID string
	pivot     string
	kind      corpus.SegmentKind
	params    align.Params
}

func (s *Service) plan(req CreateRunRequest) (runPlan, error) {
	const op = "create run"
	episodeID := strings.TrimSpace(req.EpisodeID)
	if err := corpus.ValidateEpisodeID(episodeID); err != nil {
		return runPlan{}, services.Wrap(services.ErrValidation, component, op, "invalid episode", err)
	}

	defaults := s.cfg.Alignment
	pivotRaw := req.PivotLang
	if strings.TrimSpace(pivotRaw) == "" {
		pivotRaw = defaults.PivotLang
	}
	pivot, err := language.Normalize(pivotRaw)
	if err != nil {
		return runPlan{}, services.Wrap(services.ErrValidation, component, op, "invalid pivot language", err)
	}

	targetsRaw := req.TargetLangs
	if targetsRaw == nil {
		targetsRaw = defaults.TargetLangs
	}
	targets, err := language.NormalizeList(targetsRaw)
	if err != nil {
		return runPlan{}, services.Wrap(services.ErrValidation, component, op, "invalid target language", err)
	}
	filtered := targets[:0]
	for _, lang := range targets {
		if lang != pivot {
			filtered = append(filtered, lang)
		}
	}

	minConfidence := defaults.MinConfidence
	if req.MinConfidence != nil {
		minConfidence = *req.MinConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		return runPlan{}, services.Wrap(services.ErrValidation, component, op, fmt.Sprintf("min confidence %v out of range [0,1]", minConfidence), nil)
	}
	useSimilarity := defaults.UseSimilarity
	if req.UseSimilarity != nil {
		useSimilarity = *req.UseSimilarity
	}

	kindRaw := req.SegmentKind
	if strings.TrimSpace(kindRaw) == "" {
		kindRaw = defaults.SegmentKind
	}
	kind, err := corpus.ParseSegmentKind(kindRaw)
	if err != nil {
		return runPlan{}, services.Wrap(services.ErrValidation, component, op, "invalid segment kind", err)
	}

	return runPlan{
		episodeID: episodeID,
		pivot:     pivot,
		kind:      kind,
		params: align.Params{
			TargetLangs:   filtered,
			MinConfidence: minConfidence,
			UseSimilarity: useSimilarity,
		},
	}, nil
}

// CreateRun aligns an episode and persists the run with its full link set.
// Nothing is written when a prerequisite is missing or ctx is cancelled
// before the final transaction.
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (align.Run, error) {
	const op = "create run"
	plan, err := s.plan(req)
	if err != nil {
		return align.Run{}, err
	}
	ctx = services.WithEpisodeID(ctx, plan.episodeID)
	logger := logging.WithContext(ctx, s.logger)

	if err := checkCanceled(ctx, op); err != nil {
		return align.Run{}, err
	}
	segments, err := s.store.GetSegments(ctx, plan.episodeID, plan.kind)
	if err != nil {
		return align.Run{}, storeError(op, "load segments", err)
	}
	if len(segments) == 0 {
		return align.Run{}, services.Wrap(services.ErrPrecondition, component, op,
			fmt.Sprintf("episode %s has no %s segments", plan.episodeID, plan.kind), nil)
	}
	pivotCues, err := s.store.GetCues(ctx, plan.episodeID, plan.pivot)
	if err != nil {
		return align.Run{}, storeError(op, "load pivot cues", err)
	}
	if len(pivotCues) == 0 {
		return align.Run{}, services.Wrap(services.ErrPrecondition, component, op,
			fmt.Sprintf("episode %s has no pivot cues for language %s", plan.episodeID, plan.pivot), nil)
	}

	pivotLinks, err := s.segments.Align(segments, pivotCues, plan.params.MinConfidence)
	if err != nil {
		return align.Run{}, services.Wrap(services.ErrValidation, component, op, "align segments", err)
	}
	summary := align.Summary{
		PivotLinks:        len(pivotLinks),
		SegmentsCount:     len(segments),
		CuesCount:         len(pivotCues),
		UnmatchedSegments: len(segments) - len(pivotLinks),
		TargetLinks:       make(map[string]int, len(plan.params.TargetLangs)),
		Strategies:        make(map[string]align.Strategy, len(plan.params.TargetLangs)),
	}
	segmentByCue := make(map[string]string, len(pivotLinks))
	for _, link := range pivotLinks {
		if _, ok := segmentByCue[link.CueID]; !ok {
			segmentByCue[link.CueID] = link.SegmentID
		}
	}

	links := append([]align.Link(nil), pivotLinks...)
	for _, lang := range plan.params.TargetLangs {
		if err := checkCanceled(ctx, op); err != nil {
			return align.Run{}, err
		}
		targetCues, err := s.store.GetCues(ctx, plan.episodeID, lang)
		if err != nil {
			return align.Run{}, storeError(op, "load target cues", err)
		}
		if len(targetCues) == 0 {
			logging.WarnWithContext(logger, "target language has no cues", "target_track_missing",
				logging.String(logging.FieldLang, lang),
				logging.String(logging.FieldErrorHint, "import a subtitle track for this language"),
				logging.String(logging.FieldImpact, "run has no links for this language"),
			)
			summary.TargetLinks[lang] = 0
			summary.Strategies[lang] = align.StrategyNone
			continue
		}
		targetLinks, strategy, err := s.cues.Align(pivotCues, targetCues, plan.params.MinConfidence, plan.params.UseSimilarity)
		if err != nil {
			return align.Run{}, services.Wrap(services.ErrValidation, component, op, "align "+lang+" cues", err)
		}
		for i := range targetLinks {
			targetLinks[i].SegmentID = segmentByCue[targetLinks[i].CueID]
		}
		summary.TargetLinks[lang] = len(targetLinks)
		summary.Strategies[lang] = strategy
		links = append(links, targetLinks...)
	}
	summary.TotalLinks = len(links)

	createdAt := s.now().UTC()
	run := align.Run{
		ID:        align.RunID(plan.episodeID, createdAt),
		EpisodeID: plan.episodeID,
		PivotLang: plan.pivot,
		Params:    plan.params,
		CreatedAt: createdAt,
		Summary:   summary,
	}
	for i := range links {
		links[i].ID = align.LinkID(run.ID, i)
		links[i].RunID = run.ID
	}

	if err := checkCanceled(ctx, op); err != nil {
		return align.Run{}, err
	}
	if err := s.store.CreateRun(ctx, run, links); err != nil {
		return align.Run{}, storeError(op, "persist run", err)
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger = logging.WithContext(ctx, s.logger)
	s.mirror(logger, run, links)

	logger.Info(
		"alignment run created",
		logging.String(logging.FieldEventType, "run_created"),
		logging.String("pivot_lang", run.PivotLang),
		logging.Int("segments", summary.SegmentsCount),
		logging.Int("pivot_links", summary.PivotLinks),
		logging.Int("total_links", summary.TotalLinks),
		logging.Int("unmatched_segments", summary.UnmatchedSegments),
	)
	return run, nil
}

// GetRun returns a persisted run.
func (s *Service) GetRun(ctx context.Context, runID string) (align.Run, error) {
	run, err := s.store.GetRun(ctx, strings.TrimSpace(runID))
	if err != nil {
		return align.Run{}, storeError("get run", "run "+runID, err)
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty episode lists every run.
func (s *Service) ListRuns(ctx context.Context, episodeID string) ([]align.Run, error) {
	runs, err := s.store.ListRuns(ctx, strings.TrimSpace(episodeID))
	if err != nil {
		return nil, storeError("list runs", "", err)
	}
	return runs, nil
}

// RunStats counts a run's links per review status.
func (s *Service) RunStats(ctx context.Context, runID string) (map[align.Status]int, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	stats, err := s.store.RunStats(ctx, runID)
	if err != nil {
		return nil, storeError("run stats", "run "+runID, err)
	}
	return stats, nil
}

// mirror writes the audit document for a run. The database stays
// authoritative, so failures are logged rather than returned.
func (s *Service) mirror(logger *slog.Logger, run align.Run, links []align.Link) {
	if s.docs == nil {
		return
	}
	if err := s.docs.WriteAudit(run, links); err != nil {
		logging.WarnWithContext(logger, "audit document not written", "audit_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the artifacts directory"),
		)
	}
}

// refreshAudit reloads a run after a link mutation and rewrites its audit
// document.
func (s *Service) refreshAudit(ctx context.Context, runID string) {
	if s.docs == nil {
		return
	}
	logger := logging.WithContext(services.WithRunID(ctx, runID), s.logger)
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		logger.Debug("audit refresh skipped", logging.Error(err))
		return
	}
	links, err := s.store.QueryLinks(ctx, store.LinkQuery{RunID: runID})
	if err != nil {
		logger.Debug("audit refresh skipped", logging.Error(err))
		return
	}
	s.mirror(logger, run, links)
}

func (s *Service) purge(ctx context.Context, episodeID string, runIDs []string) {
	if s.docs == nil || len(runIDs) == 0 {
		return
	}
	if err := s.docs.Purge(episodeID, runIDs...); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "run documents not purged", "artifact_purge_failed",
			logging.Error(err),
			logging.Int("runs", len(runIDs)),
		)
	}
}

func checkCanceled(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCanceled, component, operation, "", err)
	}
	return nil
}

// storeError classifies a store failure.
func storeError(operation, message string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return services.Wrap(services.ErrNotFound, component, operation, message, err)
	case errors.Is(err, store.ErrConflict):
		return services.Wrap(services.ErrConflict, component, operation, message, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrCanceled, component, operation, message, err)
	default:
		return services.Wrap(services.ErrIO, component, operation, message, err)
	}
}
