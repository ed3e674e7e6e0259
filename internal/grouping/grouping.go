package grouping

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tvcorpus/internal/artifacts"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
)

const component = "grouping"

// Group is a run of consecutive units spoken by the same speaker.
type Group struct {
	ID               int                `json:"group_id"`
	CharacterID      string             `json:"character_id,omitempty"`
	SpeakerLabel     string             `json:"speaker_label"`
	SegmentIDs       []string           `json:"segment_ids"`
	CueIDsPivot      []string           `json:"cue_ids_pivot"`
	TextSegment      string             `json:"text_segment"`
	TextsByLang      map[string]string  `json:"texts_by_lang"`
	ConfidencePivot  *float64           `json:"confidence_pivot"`
	ConfidenceByLang map[string]float64 `json:"confidence_by_lang"`

	key   string
	seen  map[string]struct{}
	texts map[string][]string
	sums  map[string]float64
	count map[string]int
}

// Grouping is the speaker-grouped view of a run.
type Grouping struct {
	EpisodeID         string    `json:"episode_id"`
	RunID             string    `json:"run_id"`
	PivotLang         string    `json:"pivot_lang"`
	Languages         []string  `json:"languages"`
	Tolerant          bool      `json:"tolerant"`
	Groups            []Group   `json:"groups"`
	RunRevision       int       `json:"run_revision"`
	AssignmentsDigest string    `json:"assignments_digest"`
	CorpusDigest      string    `json:"corpus_digest"`
	GeneratedAt       time.Time `json:"generated_at"`

	// FromCache is set by Load when the cached document was still valid.
	FromCache bool `json:"-"`
}

// Consolidator builds groupings and keeps their cache documents.
type Consolidator struct {
	store  *store.Store
	docs   *artifacts.Store
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Consolidator. docs may be nil to disable caching.
func New(st *store.Store, docs *artifacts.Store, logger *slog.Logger) *Consolidator {
	return &Consolidator{
		store:  st,
		docs:   docs,
		logger: logging.NewComponentLogger(logger, component),
		now:    time.Now,
	}
}

// Generate rebuilds a run's grouping and refreshes its cache document. In
// tolerant mode a unit without a resolvable speaker joins the preceding
// group instead of starting an unlabeled one.
func (c *Consolidator) Generate(ctx context.Context, episodeID, runID string, tolerant bool) (Grouping, error) {
	graph, err := LoadGraph(ctx, c.store, episodeID, runID)
	if err != nil {
		return Grouping{}, err
	}
	digest, err := c.store.AssignmentsDigest(ctx, episodeID)
	if err != nil {
		return Grouping{}, storeError("generate", "assignments digest", err)
	}
	corpusDigest, err := c.store.CorpusDigest(ctx, episodeID)
	if err != nil {
		return Grouping{}, storeError("generate", "corpus digest", err)
	}

	doc := Grouping{
		EpisodeID:         episodeID,
		RunID:             runID,
		PivotLang:         graph.Run.PivotLang,
		Languages:         graph.Languages(),
		Tolerant:          tolerant,
		Groups:            consolidate(graph, tolerant),
		RunRevision:       graph.Run.Revision,
		AssignmentsDigest: digest,
		CorpusDigest:      corpusDigest,
		GeneratedAt:       c.now().UTC(),
	}

	logger := logging.WithContext(services.WithRunID(services.WithEpisodeID(ctx, episodeID), runID), c.logger)
	if c.docs != nil {
		if err := c.docs.WriteGrouping(episodeID, runID, doc); err != nil {
			logging.WarnWithContext(logger, "grouping cache not written", "grouping_cache_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "next load regenerates the grouping"),
			)
		}
	}
	logger.Info(
		"grouping generated",
		logging.String(logging.FieldEventType, "grouping_generated"),
		logging.Int("units", len(graph.Units)),
		logging.Int("groups", len(doc.Groups)),
		logging.Bool("tolerant", tolerant),
	)
	return doc, nil
}

// Load returns the cached grouping when it still matches the run revision,
// the episode's assignments, its segment and cue text, and the tolerant
// flag. A missing, stale or unreadable cache is regenerated.
func (c *Consolidator) Load(ctx context.Context, episodeID, runID string, tolerant bool) (Grouping, error) {
	if c.docs == nil {
		return c.Generate(ctx, episodeID, runID, tolerant)
	}
	logger := logging.WithContext(services.WithRunID(services.WithEpisodeID(ctx, episodeID), runID), c.logger)

	var cached Grouping
	err := c.docs.ReadGrouping(episodeID, runID, &cached)
	switch {
	case err == nil:
		run, runErr := c.store.GetRun(ctx, runID)
		if runErr != nil {
			return Grouping{}, storeError("load", "run "+runID, runErr)
		}
		digest, digestErr := c.store.AssignmentsDigest(ctx, episodeID)
		if digestErr != nil {
			return Grouping{}, storeError("load", "assignments digest", digestErr)
		}
		corpusDigest, corpusErr := c.store.CorpusDigest(ctx, episodeID)
		if corpusErr != nil {
			return Grouping{}, storeError("load", "corpus digest", corpusErr)
		}
		if cached.RunID == runID && cached.EpisodeID == episodeID && cached.RunRevision == run.Revision &&
			cached.AssignmentsDigest == digest && cached.CorpusDigest == corpusDigest && cached.Tolerant == tolerant {
			cached.FromCache = true
			logger.Debug("grouping cache hit")
			return cached, nil
		}
		logger.Debug("grouping cache stale",
			logging.Int("cached_revision", cached.RunRevision),
			logging.Int("run_revision", run.Revision),
		)
	case errors.Is(err, artifacts.ErrMissing):
		logger.Debug("grouping cache missing")
	default:
		logging.WarnWithContext(logger, "grouping cache unreadable", "grouping_cache_corrupt",
			logging.Error(err),
			logging.String(logging.FieldImpact, "grouping regenerated"),
		)
	}
	return c.Generate(ctx, episodeID, runID, tolerant)
}

func consolidate(graph *Graph, tolerant bool) []Group {
	groups := make([]Group, 0)
	var current *Group
	for _, unit := range graph.Units {
		speaker := graph.Resolve(unit)
		switch {
		case current != nil && speaker.Key != "" && speaker.Key == current.key:
		case current != nil && speaker.Key == "" && tolerant:
		default:
			groups = append(groups, newGroup(len(groups)+1, speaker))
			current = &groups[len(groups)-1]
		}
		current.add(graph.Run.PivotLang, unit)
	}
	for i := range groups {
		groups[i].finish()
	}
	return groups
}

func newGroup(id int, speaker Speaker) Group {
	return Group{
		ID:               id,
		CharacterID:      speaker.CharacterID,
		SpeakerLabel:     speaker.Label,
		SegmentIDs:       []string{},
		CueIDsPivot:      []string{},
		TextsByLang:      map[string]string{},
		ConfidenceByLang: map[string]float64{},
		key:              speaker.Key,
		seen:             map[string]struct{}{},
		texts:            map[string][]string{},
		sums:             map[string]float64{},
		count:            map[string]int{},
	}
}

const pivotConfidenceKey = "\x00pivot"

func (g *Group) add(pivotLang string, unit Unit) {
	g.SegmentIDs = append(g.SegmentIDs, unit.Segment.ID)
	if g.TextSegment == "" {
		g.TextSegment = unit.Segment.Text
	} else {
		g.TextSegment += " " + unit.Segment.Text
	}
	if g.addCue(pivotLang, unit.PivotCue.ID, unit.PivotCue.Text()) {
		g.CueIDsPivot = append(g.CueIDsPivot, unit.PivotCue.ID)
	}
	g.addConfidence(pivotConfidenceKey, unit.Pivot.Confidence)
	for _, target := range unit.Targets {
		if g.addCue(target.Link.Lang, target.Cue.ID, target.Cue.Text()) {
			g.addConfidence(target.Link.Lang, target.Link.Confidence)
		}
	}
}

// addCue appends a cue's text once per group.
func (g *Group) addCue(lang, cueID, text string) bool {
	if _, dup := g.seen[cueID]; dup {
		return false
	}
	g.seen[cueID] = struct{}{}
	if text = strings.TrimSpace(text); text != "" {
		g.texts[lang] = append(g.texts[lang], text)
	}
	return true
}

func (g *Group) addConfidence(key string, value *float64) {
	if value == nil {
		return
	}
	g.sums[key] += *value
	g.count[key]++
}

func (g *Group) finish() {
	for lang, texts := range g.texts {
		g.TextsByLang[lang] = strings.Join(texts, "\n")
	}
	for key, n := range g.count {
		mean := g.sums[key] / float64(n)
		if key == pivotConfidenceKey {
			g.ConfidencePivot = &mean
			continue
		}
		g.ConfidenceByLang[key] = mean
	}
	g.seen, g.texts, g.sums, g.count = nil, nil, nil, nil
}
