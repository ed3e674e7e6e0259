package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tvcorpus/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tvcorpus.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(path, logs.TailOptions{Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Limit: 5})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines, got %#v", result.Lines)
	}
}

func TestTailFilter(t *testing.T) {
	content := "" +
		"2024-03-01 12:00:00 INFO segments replaced episode_id=S01E07 kind=sentence\n" +
		"2024-03-01 12:00:01 INFO alignment run created episode_id=S01E08 run_id=\"S01E08:2024-03-01T12:00:01Z\"\n" +
		`{"msg":"alignment run created","episode_id":"S01E07","run_id":"S01E07:2024-03-01T12:00:02Z"}` + "\n" +
		"2024-03-01 12:00:03 INFO grouping generated episode_id=S01E07\n"
	path := writeLog(t, content)

	tests := []struct {
		name   string
		filter logs.Filter
		want   int
	}{
		{name: "episode", filter: logs.Filter{"episode_id": "S01E07"}, want: 3},
		{name: "quoted run", filter: logs.Filter{"run_id": "S01E08:2024-03-01T12:00:01Z"}, want: 1},
		{name: "json run", filter: logs.Filter{"episode_id": "S01E07", "run_id": "S01E07:2024-03-01T12:00:02Z"}, want: 1},
		{name: "no prefix match", filter: logs.Filter{"episode_id": "S01E0"}, want: 0},
		{name: "empty", filter: nil, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := logs.Tail(path, logs.TailOptions{Filter: tt.filter})
			if err != nil {
				t.Fatalf("tail: %v", err)
			}
			if len(result.Lines) != tt.want {
				t.Fatalf("expected %d lines, got %#v", tt.want, result.Lines)
			}
		})
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	result, err := logs.Tail(path, logs.TailOptions{Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	lines := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, result.Offset, logs.Filter{"run_id": "r1"}, 20*time.Millisecond, func(line string) {
			lines <- line
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("skip run_id=r2\nkeep run_id=r1\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case line := <-lines:
		if line != "keep run_id=r1" {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not emit the appended line")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}
}
