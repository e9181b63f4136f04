package kernel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"linkpad.com/p/internal/apperr"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	root := t.TempDir()
	return &Resolver{
		BinaryName: "mihomo",
		RuntimeDir: filepath.Join(root, "runtime"),
		InstallDir: filepath.Join(root, "bin"),
		GOOS:       "linux",
	}
}

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestResolveReportsNonExecutable(t *testing.T) {
	r := newTestResolver(t)
	target := filepath.Join(r.RuntimeDir, "bin", "mihomo")
	writeFile(t, target, 0644)

	_, err := r.Resolve()
	if apperr.CodeOf(err) != apperr.CodeInvalidConfig {
		t.Fatalf("err = %v, want invalid config", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "存在但不可执行: "+target) {
		t.Fatalf("message does not name %s as non-executable: %s", target, msg)
	}
	if !strings.Contains(msg, r.SuggestedPath()) {
		t.Fatalf("message missing suggested path: %s", msg)
	}
}

func TestResolveOverrideWins(t *testing.T) {
	r := newTestResolver(t)
	writeFile(t, filepath.Join(r.RuntimeDir, "bin", "mihomo"), 0755)
	override := filepath.Join(t.TempDir(), "custom-mihomo")
	writeFile(t, override, 0755)
	r.Override = override

	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != override {
		t.Fatalf("got %s, want %s", got, override)
	}
}

func TestResolveOverrideDirectory(t *testing.T) {
	r := newTestResolver(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mihomo-darwin-arm64-v1.19.0"), 0755)
	r.Override = dir

	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(got) != "mihomo-darwin-arm64-v1.19.0" {
		t.Fatalf("got %s", got)
	}
}

func TestScanDirPrefersExactName(t *testing.T) {
	r := newTestResolver(t)
	dir := filepath.Join(r.InstallDir)
	writeFile(t, filepath.Join(dir, "a-mihomo-build"), 0755)
	writeFile(t, filepath.Join(dir, "mihomo-z"), 0755)
	writeFile(t, filepath.Join(dir, "mihomo_a"), 0755)

	var nonExec []string
	if got := r.scanDir(dir, &nonExec); filepath.Base(got) != "mihomo-z" {
		t.Fatalf("prefix match: got %s", got)
	}

	writeFile(t, filepath.Join(dir, "mihomo"), 0755)
	if got := r.scanDir(dir, &nonExec); filepath.Base(got) != "mihomo" {
		t.Fatalf("exact match: got %s", got)
	}
}

func TestScanDirRecordsNonExecutableAndFallsThrough(t *testing.T) {
	r := newTestResolver(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mihomo"), 0644)
	writeFile(t, filepath.Join(dir, "old-mihomo"), 0755)

	var nonExec []string
	got := r.scanDir(dir, &nonExec)
	if filepath.Base(got) != "old-mihomo" {
		t.Fatalf("got %s", got)
	}
	if len(nonExec) != 1 || filepath.Base(nonExec[0]) != "mihomo" {
		t.Fatalf("nonExec = %v", nonExec)
	}
}

func TestResolveSearchesPath(t *testing.T) {
	r := newTestResolver(t)
	pathDir := t.TempDir()
	writeFile(t, filepath.Join(pathDir, "mihomo"), 0755)
	r.PathEnv = string(os.PathListSeparator) + pathDir

	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(pathDir, "mihomo") {
		t.Fatalf("got %s", got)
	}
}

func TestWindowsIgnoresExecuteBits(t *testing.T) {
	r := newTestResolver(t)
	r.GOOS = "windows"
	path := filepath.Join(r.InstallDir, "mihomo")
	writeFile(t, path, 0644)

	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != path {
		t.Fatalf("got %s", got)
	}
}

func TestCandidatesIncludeResourceDirs(t *testing.T) {
	r := newTestResolver(t)
	r.ExeDir = filepath.Join("/Applications/Linkpad.app/Contents", "MacOS")
	r.GOOS = "darwin"

	candidates := r.Candidates()
	want := []string{
		filepath.Join("/Applications/Linkpad.app/Contents", "Resources", "linkpad", "resources", "bin", "mihomo"),
		filepath.Join("/Applications/Linkpad.app/Contents", "resources", "bin"),
		"/opt/homebrew/bin/mihomo",
		"/usr/local/bin/mihomo",
	}
	joined := strings.Join(candidates, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing candidate %s", w)
		}
	}
	if candidates[0] != "mihomo" || candidates[1] != filepath.Join(r.RuntimeDir, "bin", "mihomo") {
		t.Fatalf("unexpected order: %v", candidates[:2])
	}
}

func TestExtractVersion(t *testing.T) {
	cases := map[string]string{
		"Mihomo Meta v1.19.0 darwin arm64 with go1.22.4": "v1.19.0",
		"version: \"v2.0.1\"":                            "v2.0.1",
		"(v1.2)":                                         "v1.2",
		"vendor build":                                   "",
		"1.19.0":                                         "",
	}
	for in, want := range cases {
		if got := ExtractVersion(in); got != want {
			t.Errorf("ExtractVersion(%q) = %q, want %q", in, got, want)
		}
	}
	if got := versionFromFileName("/x/mihomo-linux-amd64-v1.18.5"); got != "v1.18.5" {
		t.Errorf("versionFromFileName = %q", got)
	}
}

func TestParseLogLine(t *testing.T) {
	cases := []struct {
		line, level, msg string
	}{
		{`time="2024-01-01T00:00:00Z" level=warning msg="[DNS] resolve failed"`, "warn", "[DNS] resolve failed"},
		{`time="x" level=error msg="Start Mixed(http+socks) server error"`, "error", "Start Mixed(http+socks) server error"},
		{`time="x" level=info msg=plain`, "info", "plain"},
		{`[ERROR] something broke`, "error", "[ERROR] something broke"},
		{`hello`, "info", "hello"},
	}
	for _, c := range cases {
		level, msg := ParseLogLine(c.line)
		if level != c.level || msg != c.msg {
			t.Errorf("ParseLogLine(%q) = %q, %q; want %q, %q", c.line, level, msg, c.level, c.msg)
		}
	}
}
