package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApp(t *testing.T) {
	app := App()
	if app == nil {
		t.Fatal("App() returned nil")
	}
	if app.Name != "rpgtop-inspect" {
		t.Errorf("Name = %q, want %q", app.Name, "rpgtop-inspect")
	}

	commandNames := make(map[string]bool)
	for _, cmd := range app.Commands {
		commandNames[cmd.Name] = true
	}
	required := []string{
		"info", "blocks", "wal", "heatmap", "verify", "codecs",
		"export", "sql", "top", "repl", "watch", "plan",
	}
	for _, name := range required {
		if !commandNames[name] {
			t.Errorf("missing required command: %s", name)
		}
	}
}

func TestGlobalFlagDefaults(t *testing.T) {
	if err := App().Run([]string{"rpgtop-inspect", "plan"}); err != nil {
		t.Fatalf("run with default flags failed: %v", err)
	}
	if err := App().Run([]string{"rpgtop-inspect", "--log-level", "nosuch", "plan"}); err == nil {
		t.Error("bad log level accepted")
	}
}

func TestChunkDirOf(t *testing.T) {
	dir := t.TempDir()
	if got := chunkDirOf(dir); got != dir {
		t.Errorf("bare dir resolved to %q", got)
	}

	sub := filepath.Join(dir, "chunks")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if got := chunkDirOf(dir); got != sub {
		t.Errorf("data dir resolved to %q, want %q", got, sub)
	}
	if got := chunkDirOf(sub); got != sub {
		t.Errorf("chunk dir resolved to %q, want %q", got, sub)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(42), "42"},
		{[]byte("postgres"), "postgres"},
		{62.5, "62.5"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"NAME", "N"}, [][]string{
		{"postgres", "3"},
		{"walwriter", "12"},
	})

	want := strings.Join([]string{
		"NAME       N ",
		"---------  --",
		"postgres   3",
		"walwriter  12",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("printTable output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestPrintError(t *testing.T) {
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	os.Stderr = w

	PrintError("open %s: %s", "x.rpg", "bad magic")

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if got, want := buf.String(), "error: open x.rpg: bad magic\n"; got != want {
		t.Errorf("PrintError output = %q, want %q", got, want)
	}
}
