package align

import (
	"testing"
	"time"
)

func TestLinkValidate(t *testing.T) {
	tests := []struct {
		name    string
		link    Link
		wantErr bool
	}{
		{"pivot ok", Link{Role: RolePivot, SegmentID: "s", CueID: "c", Lang: "en", Status: StatusAuto}, false},
		{"pivot missing segment", Link{Role: RolePivot, CueID: "c", Lang: "en", Status: StatusAuto}, true},
		{"pivot with target", Link{Role: RolePivot, SegmentID: "s", CueID: "c", CueIDTarget: "t", Lang: "en", Status: StatusAuto}, true},
		{"target ok", Link{Role: RoleTarget, CueID: "c", CueIDTarget: "t", Lang: "fr", Status: StatusAuto}, false},
		{"target missing target cue", Link{Role: RoleTarget, CueID: "c", Lang: "fr", Status: StatusAuto}, true},
		{"missing lang", Link{Role: RoleTarget, CueID: "c", CueIDTarget: "t", Status: StatusAuto}, true},
		{"bad confidence", Link{Role: RoleTarget, CueID: "c", CueIDTarget: "t", Lang: "fr", Status: StatusAuto, Confidence: Confidence(1.5)}, true},
		{"bad status", Link{Role: RoleTarget, CueID: "c", CueIDTarget: "t", Lang: "fr", Status: "maybe"}, true},
		{"bad role", Link{Role: "other", CueID: "c", Lang: "fr", Status: StatusAuto}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.link.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstructorsRejectInvalidCombinations(t *testing.T) {
	if _, err := NewTargetLink("S01E07", "S01E07:en:1", "", "fr", nil); err == nil {
		t.Fatal("expected target link without cue_id_target to fail")
	}
	if _, err := NewPivotLink("S01E07", "", "S01E07:en:1", "en", nil); err == nil {
		t.Fatal("expected pivot link without segment to fail")
	}
}

func TestStatusParsing(t *testing.T) {
	for _, s := range []string{"auto", "Accepted", " rejected ", "manual"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) = %v", s, err)
		}
	}
	if _, err := ParseStatus("pending"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	if StatusManual.Settable() {
		t.Fatal("manual must not be directly settable")
	}
	if !StatusAuto.Settable() || !StatusRejected.Settable() {
		t.Fatal("auto and rejected should be settable")
	}
}

func TestReviewStatus(t *testing.T) {
	link := Link{Status: StatusAccepted, Manual: true}
	if link.ReviewStatus() != StatusManual {
		t.Fatalf("expected manual review status, got %s", link.ReviewStatus())
	}
	link.Manual = false
	if link.ReviewStatus() != StatusAccepted {
		t.Fatalf("expected accepted, got %s", link.ReviewStatus())
	}
}

func TestRunAndLinkIDs(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("x", 3600))
	runID := RunID("S01E07", created)
	if runID != "S01E07:2026-01-02T02:04:05.000000006Z" {
		t.Fatalf("RunID = %q", runID)
	}
	if LinkID(runID, 4) != runID+":4" {
		t.Fatalf("LinkID = %q", LinkID(runID, 4))
	}
}
