package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tvcorpus/internal/config"
	"tvcorpus/internal/services"
	"tvcorpus/internal/testsupport"
)

const episode = "S01E01"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("%s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

const (
	segmentsText   = "Hello there, my friend.\nWhere is the train station?\n"
	englishSRT     = "1\n00:00:01,000 --> 00:00:02,500\nHello there, my friend.\n\n2\n00:00:03,000 --> 00:00:04,500\nWhere is the train station?\n"
	frenchSRT      = "1\n00:00:01,000 --> 00:00:02,500\nBonjour mon ami.\n\n2\n00:00:03,000 --> 00:00:04,500\nOù est la gare ?\n"
	charactersTOML = `[[characters]]
id = "alice"
canonical = "Alice"

[characters.names]
fr = "Alicia"
`
)

func importEpisode(t *testing.T, env *cliTestEnv) {
	t.Helper()
	out := mustRun(t, env, "import", "segments", episode, env.writeFile(t, "segments.txt", segmentsText))
	requireContains(t, out, "Imported 2 sentence segments")
	out = mustRun(t, env, "import", "subtitles", episode, "en", env.writeFile(t, "en.srt", englishSRT))
	requireContains(t, out, "Imported 2 en cues")
	out = mustRun(t, env, "import", "subtitles", episode, "fr", env.writeFile(t, "fr.srt", frenchSRT))
	requireContains(t, out, "Imported 2 fr cues")
	out = mustRun(t, env, "import", "characters", env.writeFile(t, "characters.toml", charactersTOML))
	requireContains(t, out, "Imported 1 characters")
	out = mustRun(t, env, "import", "assign", episode, "segment", episode+":sentence:1", "alice")
	requireContains(t, out, "Assigned")
}

func alignEpisode(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	out := mustRun(t, env, "align", "run", episode, "--json")
	var run struct {
		ID      string `json:"align_run_id"`
		Summary struct {
			PivotLinks  int            `json:"pivot_links"`
			TargetLinks map[string]int `json:"target_links"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode run: %v\n%s", err, out)
	}
	if run.ID == "" || run.Summary.PivotLinks != 2 || run.Summary.TargetLinks["fr"] != 2 {
		t.Fatalf("unexpected run %+v", run)
	}
	return run.ID
}

func TestCLIImportAlignPropagate(t *testing.T) {
	env := setupCLITestEnv(t)
	importEpisode(t, env)
	runID := alignEpisode(t, env)

	out := mustRun(t, env, "links", "list", episode, "--run", runID, "--role", "pivot", "--json")
	var links []struct {
		ID        string `json:"link_id"`
		SegmentID string `json:"segment_id"`
		CueID     string `json:"cue_id"`
	}
	if err := json.Unmarshal([]byte(out), &links); err != nil {
		t.Fatalf("decode links: %v\n%s", err, out)
	}
	if len(links) != 2 || links[0].SegmentID != episode+":sentence:1" || links[0].CueID != episode+":en:1" {
		t.Fatalf("unexpected pivot links %+v", links)
	}

	out = mustRun(t, env, "concordance", episode, runID, "--json")
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode concordance: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0]["text_fr"] != "Bonjour mon ami." || rows[1]["text_en"] != "Where is the train station?" {
		t.Fatalf("unexpected concordance %+v", rows)
	}

	out = mustRun(t, env, "group", "show", episode, runID)
	requireContains(t, out, "Alice")

	out = mustRun(t, env, "propagate", episode, runID)
	requireContains(t, out, "Cues updated:     2")

	managed := filepath.Join(env.cfg.Paths.SubtitlesDir, episode, "fr.srt")
	data, err := os.ReadFile(managed)
	if err != nil {
		t.Fatalf("read managed fr track: %v", err)
	}
	requireContains(t, string(data), "Alicia: Bonjour mon ami.")

	out = mustRun(t, env, "runs", "list", episode)
	requireContains(t, out, runID)
}

func TestCLIReviewCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	importEpisode(t, env)
	runID := alignEpisode(t, env)
	linkID := runID + ":0"

	out := mustRun(t, env, "links", "status", linkID, "rejected")
	requireContains(t, out, "is now rejected")

	_, _, err := runCLI(t, []string{"links", "status", linkID, "manual"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for manual status, got %v", err)
	}

	out = mustRun(t, env, "links", "edit", linkID, "--cue", episode+":en:2")
	requireContains(t, out, "(manual)")

	out = mustRun(t, env, "runs", "show", runID)
	requireContains(t, out, "Revision:           2")

	out = mustRun(t, env, "runs", "delete", runID)
	requireContains(t, out, "Deleted run")

	_, _, err = runCLI(t, []string{"runs", "show", runID}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCLIAlignWithoutSegmentsIsPrecondition(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRun(t, env, "import", "subtitles", episode, "en", env.writeFile(t, "en.srt", englishSRT))

	_, _, err := runCLI(t, []string{"align", "run", episode}, env.configPath)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if services.Kind(err) != "precondition" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
}

func TestCLIReimportInvalidatesRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	importEpisode(t, env)
	runID := alignEpisode(t, env)

	out := mustRun(t, env, "import", "subtitles", episode, "fr", filepath.Join(env.baseDir, "fr.srt"))
	requireContains(t, out, "Deleted 1 stale alignment run(s)")
	requireContains(t, out, runID)

	out = mustRun(t, env, "runs", "list", episode, "--json")
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected no runs, got %s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRun(t, env, "config", "validate")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestCLILogsFiltersByEpisode(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Logging.Level = "info"
	env.cfg.Logging.Format = "json"
	writeTestConfig(t, env.configPath, env.cfg)

	mustRun(t, env, "import", "segments", episode, env.writeFile(t, "segments.txt", segmentsText))
	mustRun(t, env, "import", "segments", "S01E02", env.writeFile(t, "other.txt", segmentsText))

	out := mustRun(t, env, "logs", "--episode", episode, "-n", "0")
	requireContains(t, out, "segments replaced")
	if strings.Contains(out, "S01E02") {
		t.Fatalf("expected only %s lines, got %s", episode, out)
	}
}
