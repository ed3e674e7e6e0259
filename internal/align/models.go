package align

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role distinguishes segment-to-cue links from cue-to-cue links.
type Role string

const (
	RolePivot  Role = "pivot"
	RoleTarget Role = "target"
)

// ParseRole validates a role string.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RolePivot:
		return RolePivot, nil
	case RoleTarget:
		return RoleTarget, nil
	default:
		return "", fmt.Errorf("unknown link role %q", value)
	}
}

// Status is the review state of a link.
type Status string

const (
	StatusAuto     Status = "auto"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	// StatusManual marks a link whose cues were edited by hand. It is only
	// reached through a cue edit, which also accepts the link.
	StatusManual Status = "manual"
)

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusAuto:
		return StatusAuto, nil
	case StatusAccepted:
		return StatusAccepted, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusManual:
		return StatusManual, nil
	default:
		return "", fmt.Errorf("unknown link status %q", value)
	}
}

// Settable reports whether the status may be assigned directly.
func (s Status) Settable() bool {
	switch s {
	case StatusAuto, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Strategy names the matching strategy the cue aligner used for a language.
type Strategy string

const (
	StrategyTime       Strategy = "time"
	StrategySimilarity Strategy = "similarity"
	StrategyOrder      Strategy = "order"
	StrategyNone       Strategy = "none"
)

// Link is one alignment relationship. Pivot links bind a segment to a pivot
// cue; target links bind a pivot cue (CueID) to a target cue (CueIDTarget).
type Link struct {
	ID          string   `json:"link_id"`
	RunID       string   `json:"align_run_id"`
	EpisodeID   string   `json:"episode_id"`
	SegmentID   string   `json:"segment_id,omitempty"`
	CueID       string   `json:"cue_id,omitempty"`
	CueIDTarget string   `json:"cue_id_target,omitempty"`
	Lang        string   `json:"lang"`
	Role        Role     `json:"role"`
	Confidence  *float64 `json:"confidence"`
	Status      Status   `json:"status"`
	Manual      bool     `json:"manual,omitempty"`
}

var (
	errMissingSegment   = errors.New("pivot link requires segment_id")
	errMissingCue       = errors.New("link requires cue_id")
	errUnexpectedTarget = errors.New("pivot link must not carry cue_id_target")
	errMissingTarget    = errors.New("target link requires cue_id_target")
	errMissingLang      = errors.New("link requires lang")
)

// NewPivotLink builds a validated segment-to-cue link.
func NewPivotLink(episodeID, segmentID, cueID, lang string, confidence *float64) (Link, error) {
	link := Link{
		EpisodeID:  episodeID,
		SegmentID:  segmentID,
		CueID:      cueID,
		Lang:       lang,
		Role:       RolePivot,
		Confidence: confidence,
		Status:     StatusAuto,
	}
	return link, link.Validate()
}

// NewTargetLink builds a validated cue-to-cue link. lang is the target
// language.
func NewTargetLink(episodeID, pivotCueID, targetCueID, lang string, confidence *float64) (Link, error) {
	link := Link{
		EpisodeID:   episodeID,
		CueID:       pivotCueID,
		CueIDTarget: targetCueID,
		Lang:        lang,
		Role:        RoleTarget,
		Confidence:  confidence,
		Status:      StatusAuto,
	}
	return link, link.Validate()
}

// Validate checks the field combination required by the link's role.
func (l Link) Validate() error {
	if strings.TrimSpace(l.Lang) == "" {
		return errMissingLang
	}
	if strings.TrimSpace(l.CueID) == "" {
		return errMissingCue
	}
	switch l.Role {
	case RolePivot:
		if strings.TrimSpace(l.SegmentID) == "" {
			return errMissingSegment
		}
		if l.CueIDTarget != "" {
			return errUnexpectedTarget
		}
	case RoleTarget:
		if strings.TrimSpace(l.CueIDTarget) == "" {
			return errMissingTarget
		}
	default:
		return fmt.Errorf("unknown link role %q", l.Role)
	}
	if l.Confidence != nil && (*l.Confidence < 0 || *l.Confidence > 1) {
		return fmt.Errorf("confidence %v out of range [0,1]", *l.Confidence)
	}
	if _, err := ParseStatus(string(l.Status)); err != nil {
		return err
	}
	return nil
}

// ReviewStatus reports the status a reviewer sees: manual edits surface as
// manual even though they are stored as accepted.
func (l Link) ReviewStatus() Status {
	if l.Manual {
		return StatusManual
	}
	return l.Status
}

// Confidence returns a pointer to v for use in link records.
func Confidence(v float64) *float64 {
	return &v
}

// Params are the inputs a run was computed with.
type Params struct {
	TargetLangs   []string `json:"target_langs"`
	MinConfidence float64  `json:"min_confidence"`
	UseSimilarity bool     `json:"use_similarity"`
}

// Summary records link counts for a run.
type Summary struct {
	PivotLinks        int                 `json:"pivot_links"`
	TotalLinks        int                 `json:"total_links"`
	SegmentsCount     int                 `json:"segments_count"`
	CuesCount         int                 `json:"cues_count"`
	UnmatchedSegments int                 `json:"unmatched_segments"`
	TargetLinks       map[string]int      `json:"target_links,omitempty"`
	Strategies        map[string]Strategy `json:"strategies,omitempty"`
}

// Run is one timestamped alignment computation for an episode.
type Run struct {
	ID        string    `json:"align_run_id"`
	EpisodeID string    `json:"episode_id"`
	PivotLang string    `json:"pivot_lang"`
	Params    Params    `json:"params"`
	CreatedAt time.Time `json:"created_at"`
	Summary   Summary   `json:"summary"`
	Revision  int       `json:"revision"`
}

// RunID composes a run id from the episode and creation time.
func RunID(episodeID string, createdAt time.Time) string {
	return episodeID + ":" + createdAt.UTC().Format(time.RFC3339Nano)
}

// LinkID composes a link id from its run and position in the run's link set.
func LinkID(runID string, index int) string {
	return fmt.Sprintf("%s:%d", runID, index)
}
