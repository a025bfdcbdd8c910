package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mcworldtools/internal/ident"
	journal "mcworldtools/internal/persistence/log"
	"mcworldtools/internal/world"
	"mcworldtools/internal/world/worldtest"
)

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(stdin string) *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = &app{
		stdin:  strings.NewReader(stdin),
		stdout: h.stdout,
		stderr: h.stderr,
		notify: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		},
	}
	return h
}

func unusedWorld(t *testing.T) (*worldtest.Builder, string) {
	t.Helper()
	b := worldtest.New(t, "survival")
	path := b.Region(world.Overworld, "region", 0, 0,
		worldtest.Cell{X: 0, Z: 0, Root: worldtest.Terrain(ident.ChunkPos{X: 0, Z: 0}, 0)},
		worldtest.Cell{X: 1, Z: 0, Root: worldtest.Terrain(ident.ChunkPos{X: 1, Z: 0}, 50000)},
	)
	return b, path
}

func TestRun_ExitCodes(t *testing.T) {
	notWorld := t.TempDir()
	b, _ := unusedWorld(t)
	empty := worldtest.New(t, "empty")
	badInput := filepath.Join(t.TempDir(), "in.json")
	if err := os.WriteFile(badInput, []byte(`{"action": 7}`), 0o644); err != nil {
		t.Fatal(err)
	}
	findInput := filepath.Join(t.TempDir(), "find.yaml")
	if err := os.WriteFile(findInput, []byte("action: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		args  []string
		stdin string
		want  int
	}{
		{"version", []string{"-v"}, "", exitOK},
		{"missing world", []string{"-world", filepath.Join(notWorld, "nope")}, "", exitBadArgument},
		{"duplicate world", []string{"-world", b.Root, "-world", b.Root + "/."}, "", exitBadArgument},
		{"not a world", []string{"-world", notWorld}, "", exitNotWorld},
		{"output is a folder", []string{"-world", b.Root, "-o", notWorld}, "", exitBadArgument},
		{"bad format", []string{"-world", b.Root, "-f", "xml"}, "", exitBadArgument},
		{"missing input", []string{"-world", b.Root, "-i", filepath.Join(notWorld, "in.json")}, "", exitBadArgument},
		{"invalid input", []string{"-world", b.Root, "-i", badInput}, "", exitBadInput},
		{"find without output", []string{"-world", b.Root, "-i", findInput, "command-blocks"}, "\n", exitNeedOutput},
		{"no folders", []string{"-world", empty.Root, "-confirm", "-tool", "1"}, "\n", exitNoFolders},
		{"unknown tool", []string{"-world", b.Root, "blocks"}, "", exitBadArgument},
		{"cancel tool prompt", []string{"-world", b.Root}, "c\n", exitOK},
		{"declined", []string{"-world", b.Root, "unused-chunks"}, "\nn\n", exitOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(tc.stdin)
			if got := h.app.run(tc.args); got != tc.want {
				t.Fatalf("exit=%d want %d\nstdout:\n%s\nstderr:\n%s", got, tc.want, h.stdout, h.stderr)
			}
		})
	}
}

func TestRun_DeclinedLeavesWorldUntouched(t *testing.T) {
	b, path := unusedWorld(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness("\n\n")
	if code := h.app.run([]string{"-world", b.Root, "-tool", "1"}); code != exitOK {
		t.Fatalf("exit=%d", code)
	}
	after, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(before, after) {
		t.Fatalf("region file changed after decline (err=%v)", err)
	}
}

func TestRun_UnusedChunksEndToEnd(t *testing.T) {
	b, path := unusedWorld(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	journalDir := filepath.Join(dir, "journal")
	index := filepath.Join(dir, "index.db")
	in := filepath.Join(dir, "in.yaml")
	if err := os.WriteFile(in, []byte("inhabited_time: 10\nconfirm: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness("")
	code := h.app.run([]string{"-world", b.Root, "-i", in, "-o", out, "-f", "json", "-journal", journalDir, "-index", index, "unused-chunks"})
	if code != exitOK {
		t.Fatalf("exit=%d\nstdout:\n%s\nstderr:\n%s", code, h.stdout, h.stderr)
	}
	if !strings.Contains(h.stdout.String(), `Detected world: "survival" (Version: 1.20.1, World folder:`) {
		t.Fatalf("stdout:\n%s", h.stdout)
	}
	if !strings.Contains(h.stdout.String(), "Removed 1/2 (50.00%) chunks of world") {
		t.Fatalf("stdout:\n%s", h.stdout)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	var doc struct {
		Tool  string `json:"tool"`
		Total struct {
			Removed int `json:"removed"`
			Total   int `json:"total"`
		} `json:"total"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("output json: %v", err)
	}
	if doc.Tool != "unused-chunks" || doc.Total.Removed != 1 || doc.Total.Total != 2 {
		t.Fatalf("report=%+v", doc)
	}

	entries, err := journal.ReadJournal(journalDir)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != path || entries[0].Cell == nil || *entries[0].Cell != (ident.ChunkPos{}) {
		t.Fatalf("journal=%+v", entries)
	}
	if _, err := os.Stat(index); err != nil {
		t.Fatalf("index: %v", err)
	}
}

func TestRun_InterruptedExits130(t *testing.T) {
	b, path := unusedWorld(t)
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// The empty line takes the default threshold so the tool actually starts.
	h := newHarness("\n")
	h.app.notify = func(ctx context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return ctx, cancel
	}
	if code := h.app.run([]string{"-world", b.Root, "-confirm", "-tool", "1"}); code != exitInterrupted {
		t.Fatalf("exit=%d\nstderr:\n%s", code, h.stderr)
	}
	if !strings.Contains(h.stdout.String(), "Aborted.") {
		t.Fatalf("stdout:\n%s", h.stdout)
	}
	f, err := os.Stat(path)
	if err != nil || f.Size() != before.Size() {
		t.Fatalf("region file after interrupt: %v", err)
	}
}
