package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/repoctx/internal/index"
	"github.com/phobologic/repoctx/internal/model"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "utils.py", `def helper(name: str) -> str:
    """Format a name."""
    return name.upper()
`)
	writeTestFile(t, dir, "main.py", `class User:
    pass

def greet():
    helper("x")
    print("done")
`)
	return dir
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "# Repository Context") {
		t.Error("missing agent context header")
	}
	if !strings.Contains(out, "repo:") {
		t.Error("missing repo: header")
	}
	if !strings.Contains(out, "files[2]") {
		t.Errorf("expected 2 files, got:\n%s", out)
	}
	if !strings.Contains(stderr.String(), "build (no prior state)") {
		t.Errorf("expected build summary on stderr, got:\n%s", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, ".context", "context.json")); err != nil {
		t.Errorf("index not persisted: %v", err)
	}
}

func TestRunRaw(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"--raw", dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if strings.Contains(out, "# Repository Context") {
		t.Error("--raw should suppress agent context header")
	}
	if !strings.HasPrefix(out, "repo:") {
		t.Errorf("--raw output should start with repo:, got:\n%s", out)
	}
}

func TestRunSymbols(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "main.py,User,class,1-2,User") {
		t.Errorf("missing User class:\n%s", out)
	}
	if !strings.Contains(out, `utils.py,helper,function,1-3,"helper(name: str) -> str",Format a name.`) {
		t.Errorf("missing helper function:\n%s", out)
	}
}

func TestRunCallsAndDependencies(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "main.py,greet,helper") {
		t.Errorf("missing greet→helper call edge:\n%s", out)
	}
	if !strings.Contains(out, "main.py,utils.py,helper") {
		t.Errorf("missing dependency main.py → utils.py:\n%s", out)
	}
	if strings.Contains(out, "external[") {
		t.Errorf("external table should be opt-in:\n%s", out)
	}
}

func TestRunExternal(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--external", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "external[") {
		t.Errorf("missing external table:\n%s", out)
	}
	if !strings.Contains(out, "main.py,greet,print") {
		t.Errorf("missing greet's external call:\n%s", out)
	}
}

func TestRunJSON(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	var idx model.Index
	if err := json.Unmarshal(stdout.Bytes(), &idx); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(idx.Files) != 2 || idx.Stats.FileCount != 2 {
		t.Errorf("unexpected index: %+v", idx)
	}
	greet := idx.SymbolsNamed("greet")
	if len(greet) != 1 {
		t.Fatalf("greet: got %d symbols", len(greet))
	}
	if got := greet[0].InternalCalls; len(got) != 1 || got[0] != "helper" {
		t.Errorf("greet internal calls: %v", got)
	}
	if got := greet[0].ExternalCalls; len(got) != 1 || got[0] != "print" {
		t.Errorf("greet external calls: %v", got)
	}
}

func TestRunUnknownFormat(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"--format", "xml", createSampleRepo(t)}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestRunSecondRunUnchanged(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout1, stderr1 bytes.Buffer
	if err := run([]string{dir}, &stdout1, &stderr1); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var stdout2, stderr2 bytes.Buffer
	if err := run([]string{dir}, &stdout2, &stderr2); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stdout1.String() != stdout2.String() {
		t.Errorf("output mismatch:\nfirst:\n%s\nsecond:\n%s", stdout1.String(), stdout2.String())
	}
	if !strings.HasPrefix(stderr2.String(), "unchanged;") {
		t.Errorf("expected unchanged summary, got:\n%s", stderr2.String())
	}
}

func TestRunSyncAfterEdit(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var buf bytes.Buffer
	if err := run([]string{dir}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}

	writeTestFile(t, dir, "utils.py", "def helper():\n    pass\n\ndef extra():\n    pass\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.HasPrefix(stderr.String(), "sync: 1 changed, 0 removed;") {
		t.Errorf("expected sync summary, got:\n%s", stderr.String())
	}
	if !strings.Contains(stdout.String(), "utils.py,extra,function") {
		t.Errorf("new symbol missing:\n%s", stdout.String())
	}
}

func TestRunForce(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var buf bytes.Buffer
	if err := run([]string{dir}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--force", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if !strings.HasPrefix(stderr.String(), "build (forced)") {
		t.Errorf("expected forced build, got:\n%s", stderr.String())
	}
}

func TestRunStoreFlag(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--store", "bolt", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".context", "index.db")); err != nil {
		t.Errorf("bolt store not created: %v", err)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, "lib.rs", "fn helper() {}\n")
	writeTestFile(t, dir, ".repoctx.toml", "languages = [\"rust\"]\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "files[1]") || !strings.Contains(out, "lib.rs") {
		t.Errorf("config languages not applied:\n%s", out)
	}

	// Flags take precedence over the config file.
	stdout.Reset()
	if err := run([]string{"-l", "python", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "files[2]") {
		t.Errorf("-l should override config:\n%s", stdout.String())
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-V"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "repoctx") {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunNoFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "readme.txt", "nothing here")

	var stdout, stderr bytes.Buffer
	err := run([]string{dir}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for no parseable files")
	}
	if !strings.Contains(err.Error(), "no parseable files") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-l", "cobol", t.TempDir()}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if !strings.Contains(err.Error(), "unsupported language") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunNotADirectory(t *testing.T) {
	t.Parallel()
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	err := run([]string{f}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for non-directory")
	}
}

func TestRunMaxFileSize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "small.py", "x = 1")
	writeTestFile(t, dir, "big.py", strings.Repeat("x = 1\n", 200))

	var stdout, stderr bytes.Buffer
	err := run([]string{"--max-file-size", "100", dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "small.py") {
		t.Error("missing small.py")
	}
	if strings.Contains(out, "big.py") {
		t.Error("big.py should be filtered out")
	}
	if !strings.Contains(stderr.String(), "skipping large file") {
		t.Errorf("expected warning about skipped file, got:\n%s", stderr.String())
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	idx := model.NewIndex(model.RepoStats{FileCount: 1200, TotalBytes: 2_500_000, TotalLines: 30112})
	idx.Symbols = make([]model.Symbol, 3)

	res := index.Result{Mode: index.ModeSync, Changed: []string{"a.py", "b.rs"}, Removed: []string{"c.go"}}
	got := summary(res, idx, 0)
	want := "sync: 2 changed, 1 removed; 1,200 files, 2.5 MB, 30,112 lines, 3 symbols (0s)"
	if got != want {
		t.Errorf("summary:\ngot  %q\nwant %q", got, want)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseStore(t *testing.T) {
	t.Parallel()

	failing := closerFunc(func() error { return errors.New("disk full") })

	var err error
	closeStore(failing, &err)
	if err == nil || !strings.Contains(err.Error(), "closing store: disk full") {
		t.Errorf("close error not reported: %v", err)
	}

	err = errNoFiles
	closeStore(failing, &err)
	if !errors.Is(err, errNoFiles) {
		t.Errorf("earlier error should win, got %v", err)
	}

	err = nil
	closeStore(closerFunc(func() error { return nil }), &err)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
