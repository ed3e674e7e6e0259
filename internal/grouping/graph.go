package grouping

import (
	"context"
	"errors"
	"fmt"

	"tvcorpus/internal/align"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
	"tvcorpus/internal/textutil"
)

// TargetCue is a target-language cue reached from a unit's pivot cue.
type TargetCue struct {
	Link align.Link
	Cue  corpus.Cue
}

// Unit is one pivot link with the records it binds: the segment, the pivot
// cue, and every target cue linked to that pivot cue, in link order.
type Unit struct {
	Pivot    align.Link
	Segment  corpus.Segment
	PivotCue corpus.Cue
	Targets  []TargetCue
}

// Graph is the reviewed link graph of a run. Rejected links are left out.
type Graph struct {
	Run         align.Run
	Units       []Unit
	Assignments corpus.Assignments
	Characters  map[string]corpus.Character
}

// Speaker is the resolved speaker of a unit. Key is empty when nothing
// resolved.
type Speaker struct {
	Key         string
	CharacterID string
	Label       string
}

// Languages returns the pivot language followed by the run's targets.
func (g *Graph) Languages() []string {
	langs := make([]string, 0, 1+len(g.Run.Params.TargetLangs))
	langs = append(langs, g.Run.PivotLang)
	return append(langs, g.Run.Params.TargetLangs...)
}

// Character resolves the character assigned to a unit: the segment first,
// then the pivot cue, then the first assigned target cue in link order.
func (g *Graph) Character(u Unit) (corpus.Character, bool) {
	candidates := make([]string, 0, 2)
	if id, ok := g.Assignments.Segment(u.Segment.ID); ok {
		candidates = append(candidates, id)
	}
	if id, ok := g.Assignments.Cue(u.PivotCue.ID); ok {
		candidates = append(candidates, id)
	}
	for _, target := range u.Targets {
		if id, ok := g.Assignments.Cue(target.Cue.ID); ok {
			candidates = append(candidates, id)
		}
	}
	for _, id := range candidates {
		if character, ok := g.Characters[id]; ok {
			return character, true
		}
	}
	return corpus.Character{}, false
}

// Resolve returns a unit's speaker: an assigned character, or else the
// segment's raw speaker label.
func (g *Graph) Resolve(u Unit) Speaker {
	if character, ok := g.Character(u); ok {
		return Speaker{
			Key:         "char:" + character.ID,
			CharacterID: character.ID,
			Label:       character.CanonicalName(g.Run.PivotLang),
		}
	}
	if label := u.Segment.SpeakerExplicit; label != "" {
		if key := textutil.FoldKey(label); key != "" {
			return Speaker{Key: "spk:" + key, Label: label}
		}
	}
	return Speaker{}
}

// LoadGraph reads a run's links and the records they reference.
func LoadGraph(ctx context.Context, st *store.Store, episodeID, runID string) (*Graph, error) {
	const op = "load run"
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, storeError(op, "run "+runID, err)
	}
	if run.EpisodeID != episodeID {
		return nil, services.Wrap(services.ErrNotFound, component, op,
			fmt.Sprintf("run %s does not belong to episode %s", runID, episodeID), nil)
	}
	links, err := st.QueryLinks(ctx, store.LinkQuery{RunID: runID})
	if err != nil {
		return nil, storeError(op, "links", err)
	}

	segments := make(map[string]corpus.Segment)
	for _, kind := range []corpus.SegmentKind{corpus.KindSentence, corpus.KindUtterance} {
		list, err := st.GetSegments(ctx, episodeID, kind)
		if err != nil {
			return nil, storeError(op, "segments", err)
		}
		for _, seg := range list {
			segments[seg.ID] = seg
		}
	}
	cues := make(map[string]corpus.Cue)
	for _, lang := range append([]string{run.PivotLang}, run.Params.TargetLangs...) {
		list, err := st.GetCues(ctx, episodeID, lang)
		if err != nil {
			return nil, storeError(op, "cues "+lang, err)
		}
		for _, cue := range list {
			cues[cue.ID] = cue
		}
	}

	targetsByCue := make(map[string][]TargetCue)
	var pivots []align.Link
	for _, link := range links {
		if link.Status == align.StatusRejected {
			continue
		}
		switch link.Role {
		case align.RolePivot:
			pivots = append(pivots, link)
		case align.RoleTarget:
			cue, ok := cues[link.CueIDTarget]
			if !ok {
				continue
			}
			targetsByCue[link.CueID] = append(targetsByCue[link.CueID], TargetCue{Link: link, Cue: cue})
		}
	}

	units := make([]Unit, 0, len(pivots))
	for _, link := range pivots {
		seg, okSeg := segments[link.SegmentID]
		cue, okCue := cues[link.CueID]
		if !okSeg || !okCue {
			continue
		}
		units = append(units, Unit{Pivot: link, Segment: seg, PivotCue: cue, Targets: targetsByCue[link.CueID]})
	}

	assignments, err := st.Assignments(ctx, episodeID)
	if err != nil {
		return nil, storeError(op, "assignments", err)
	}
	list, err := st.ListCharacters(ctx)
	if err != nil {
		return nil, storeError(op, "characters", err)
	}
	characters := make(map[string]corpus.Character, len(list))
	for _, character := range list {
		characters[character.ID] = character
	}

	return &Graph{
		Run:         run,
		Units:       units,
		Assignments: corpus.NewAssignments(assignments),
		Characters:  characters,
	}, nil
}

func storeError(operation, message string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return services.Wrap(services.ErrNotFound, component, operation, message, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrCanceled, component, operation, message, err)
	default:
		return services.Wrap(services.ErrIO, component, operation, message, err)
	}
}
