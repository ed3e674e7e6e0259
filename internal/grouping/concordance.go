package grouping

import (
	"context"
	"slices"
	"strings"

	"tvcorpus/internal/language"
	"tvcorpus/internal/services"
)

// Row is one line of the parallel concordance: a segment with the pivot and
// target texts linked to it.
type Row struct {
	SegmentID        string              `json:"segment_id"`
	TextSegment      string              `json:"text_segment"`
	TextsByLang      map[string]string   `json:"texts_by_lang"`
	ConfidencePivot  *float64            `json:"confidence_pivot"`
	ConfidenceByLang map[string]*float64 `json:"confidence_by_lang"`

	langs []string
}

// Flat renders the row with one text_<lang> and confidence_<lang> key per
// language, in the shape exporters expect.
func (r Row) Flat() map[string]any {
	out := map[string]any{
		"segment_id":       r.SegmentID,
		"text_segment":     r.TextSegment,
		"confidence_pivot": r.ConfidencePivot,
	}
	langs := r.langs
	if langs == nil {
		for lang := range r.TextsByLang {
			langs = append(langs, lang)
		}
	}
	for _, lang := range langs {
		out["text_"+lang] = r.TextsByLang[lang]
		if conf, ok := r.ConfidenceByLang[lang]; ok {
			out["confidence_"+lang] = conf
		}
	}
	return out
}

// Languages returns the row's columns, pivot first.
func (r Row) Languages() []string {
	return slices.Clone(r.langs)
}

// Concordance lists a run's segments with their linked texts, one row per
// non-rejected pivot link. langs restricts the target languages; the pivot
// language is always present.
func (c *Consolidator) Concordance(ctx context.Context, episodeID, runID string, langs []string) ([]Row, error) {
	graph, err := LoadGraph(ctx, c.store, episodeID, runID)
	if err != nil {
		return nil, err
	}
	wanted, err := language.NormalizeList(langs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "concordance", "invalid language", err)
	}
	pivot := graph.Run.PivotLang
	columns := []string{pivot}
	for _, lang := range graph.Run.Params.TargetLangs {
		if len(wanted) == 0 || slices.Contains(wanted, lang) {
			columns = append(columns, lang)
		}
	}

	rows := make([]Row, 0, len(graph.Units))
	for _, unit := range graph.Units {
		row := Row{
			SegmentID:        unit.Segment.ID,
			TextSegment:      unit.Segment.Text,
			TextsByLang:      map[string]string{pivot: unit.PivotCue.Text()},
			ConfidencePivot:  unit.Pivot.Confidence,
			ConfidenceByLang: map[string]*float64{},
			langs:            columns,
		}
		texts := map[string][]string{}
		sums := map[string]float64{}
		counts := map[string]int{}
		for _, target := range unit.Targets {
			lang := target.Link.Lang
			if !slices.Contains(columns[1:], lang) {
				continue
			}
			texts[lang] = append(texts[lang], target.Cue.Text())
			if target.Link.Confidence != nil {
				sums[lang] += *target.Link.Confidence
				counts[lang]++
			}
		}
		for _, lang := range columns[1:] {
			row.TextsByLang[lang] = strings.Join(texts[lang], "\n")
			if counts[lang] > 0 {
				mean := sums[lang] / float64(counts[lang])
				row.ConfidenceByLang[lang] = &mean
			} else {
				row.ConfidenceByLang[lang] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
