package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/mutate"
)

func TestMutationJournal_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	j := NewMutationJournal(dir)
	j.w.now = func() time.Time { return time.Date(2024, 5, 6, 7, 30, 0, 0, time.UTC) }

	cell := ident.ChunkPos{X: 3, Z: 4}
	in := []mutate.Entry{
		{Time: time.Unix(10, 0).UTC(), Op: mutate.OpUnlink, Path: "/w/region/r.0.0.mca", Cell: &cell},
		{Time: time.Unix(11, 0).UTC(), Op: mutate.OpDeleteFile, Path: "/w/region/r.1.0.mca", Chunks: 4},
		{Time: time.Unix(12, 0).UTC(), Op: mutate.OpRewrite, Path: "/w/entities/r.0.0.mca", Cell: &cell, Removed: 2},
	}
	for _, e := range in {
		if err := j.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mutations-2024-05-06-07.jsonl.zst")); err != nil {
		t.Fatalf("journal file: %v", err)
	}

	out, err := ReadJournal(dir)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("entries=%d want %d", len(out), len(in))
	}
	if out[1].Op != mutate.OpDeleteFile || out[1].Chunks != 4 || out[1].Cell != nil {
		t.Fatalf("entry 1=%+v", out[1])
	}
	if out[2].Cell == nil || *out[2].Cell != cell || out[2].Removed != 2 || !out[2].Time.Equal(time.Unix(12, 0)) {
		t.Fatalf("entry 2=%+v", out[2])
	}
}

func TestMutationJournal_RotatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	hour := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	j := NewMutationJournal(dir)
	j.w.now = func() time.Time { return hour }
	if err := j.Record(mutate.Entry{Op: mutate.OpUnlink, Path: "a"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	hour = hour.Add(time.Hour)
	if err := j.Record(mutate.Entry{Op: mutate.OpUnlink, Path: "b"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second writer in the same hour appends a new frame.
	j2 := NewMutationJournal(dir)
	j2.w.now = func() time.Time { return hour }
	if err := j2.Record(mutate.Entry{Op: mutate.OpUnlink, Path: "c"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	out, err := ReadJournal(dir)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	var paths string
	for _, e := range out {
		paths += e.Path
	}
	if paths != "abc" {
		t.Fatalf("order=%q", paths)
	}
}
