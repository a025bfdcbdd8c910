package scan_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Tnze/go-mc/nbt/dynbt"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/nbt"
	"mcworldtools/internal/region"
	"mcworldtools/internal/scan"
	"mcworldtools/internal/world"
	"mcworldtools/internal/world/worldtest"
)

// inhabitedAtMost matches whole chunks whose InhabitedTime is <= max.
func inhabitedAtMost(limit int64) scan.Predicate {
	return scan.PredicateFunc(func(c *scan.Chunk) ([]scan.Hit, error) {
		n, ok := c.View.InhabitedTime()
		if !ok {
			return nil, fmt.Errorf("InhabitedTime: %w", scan.ErrMissingField)
		}
		if n > limit {
			return nil, nil
		}
		return []scan.Hit{{Index: -1, Fields: n}}, nil
	})
}

func newLogger(w io.Writer) *log.Logger { return log.New(w, "", 0) }

func containers(t *testing.T, b *worldtest.Builder, dim world.Dimension) []world.Container {
	t.Helper()
	cs, err := world.ListContainers(b.Folder(dim, "region"), dim)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	return cs
}

func TestRun_MatchesAndCoordinates(t *testing.T) {
	b := worldtest.New(t, "w")
	b.Region(world.Overworld, "region", -1, 2,
		worldtest.Cell{X: 0, Z: 0, Root: worldtest.Terrain(ident.ChunkPos{X: -32, Z: 64}, 0)},
		worldtest.Cell{X: 4, Z: 1, Root: worldtest.Terrain(ident.ChunkPos{X: -28, Z: 65}, 900)},
		worldtest.Cell{X: 31, Z: 3, Root: worldtest.Terrain(ident.ChunkPos{X: -1, Z: 67}, 20)},
	)
	b.Region(world.Overworld, "region", 0, 0,
		worldtest.Cell{X: 2, Z: 2, Root: worldtest.Terrain(ident.ChunkPos{X: 2, Z: 2}, 5)},
	)

	tally := &scan.Tally{}
	e := &scan.Engine{Progress: tally, Weight: 1}
	res, err := e.Run(context.Background(), containers(t, b, world.Overworld), inhabitedAtMost(20), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Chunks != 4 || res.Scanned != 4 || len(res.Diagnostics) != 0 {
		t.Fatalf("result=%+v", res)
	}
	want := []struct {
		container string
		local     ident.ChunkPos
		abs       ident.ChunkPos
		inhabited int64
	}{
		{"r.-1.2.mca", ident.ChunkPos{X: 0, Z: 0}, ident.ChunkPos{X: -32, Z: 64}, 0},
		{"r.-1.2.mca", ident.ChunkPos{X: 31, Z: 3}, ident.ChunkPos{X: -1, Z: 67}, 20},
		{"r.0.0.mca", ident.ChunkPos{X: 2, Z: 2}, ident.ChunkPos{X: 2, Z: 2}, 5},
	}
	if len(res.Matches) != len(want) {
		t.Fatalf("matches=%+v", res.Matches)
	}
	for i, w := range want {
		m := res.Matches[i]
		if m.Container != w.container || m.Local != w.local || m.Absolute != w.abs || m.Fields != w.inhabited || m.Index != -1 {
			t.Fatalf("match %d=%+v want %+v", i, m, w)
		}
	}
	if tally.Total != 2*region.Cells || tally.Count != tally.Total || tally.Starts != 1 || tally.Dones != 1 {
		t.Fatalf("progress=%+v", tally)
	}
}

func TestRun_MissingFieldAndUnnamedContainer(t *testing.T) {
	b := worldtest.New(t, "w")
	dir := b.Folder(world.Overworld, "region")
	noInhabited := nbt.NewCompound(
		nbt.Field{Name: "xPos", Value: dynbt.NewInt(70)},
		nbt.Field{Name: "zPos", Value: dynbt.NewInt(-3)},
	)
	worldtest.WriteRegion(t, filepath.Join(dir, "copy.mca"),
		worldtest.Cell{X: 6, Z: 29, Root: noInhabited},
		worldtest.Cell{X: 7, Z: 29, Root: worldtest.Terrain(ident.ChunkPos{X: 71, Z: -3}, 0)},
	)

	var logged strings.Builder
	e := &scan.Engine{Weight: 2, Logger: newLogger(&logged)}
	tally := &scan.Tally{}
	e.Progress = tally
	res, err := e.Run(context.Background(), containers(t, b, world.Overworld), inhabitedAtMost(0), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Diagnostics) != 1 || len(res.Matches) != 1 {
		t.Fatalf("result=%+v", res)
	}
	d := res.Diagnostics[0]
	if !errors.Is(d.Err, scan.ErrMissingField) {
		t.Fatalf("diagnostic err=%v", d.Err)
	}
	msg := `Chunk 6 29 (in world at 70 -3) in the region file "copy.mca" could not be read.`
	if d.String() != msg || !strings.Contains(logged.String(), msg) {
		t.Fatalf("diagnostic=%q logged=%q", d.String(), logged.String())
	}
	// No coordinates in the name: the chunk's own position is used.
	if res.Matches[0].Absolute != (ident.ChunkPos{X: 71, Z: -3}) {
		t.Fatalf("absolute=%v", res.Matches[0].Absolute)
	}
	if tally.Count != 2*region.Cells {
		t.Fatalf("progress count=%d want %d", tally.Count, 2*region.Cells)
	}
}

func TestRun_WeightedProgressWithMutation(t *testing.T) {
	b := worldtest.New(t, "w")
	var cells []worldtest.Cell
	for i, c := range []ident.ChunkPos{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 2, Z: 0}, {X: 3, Z: 0}} {
		n := int64(0)
		if i == 3 {
			n = 500
		}
		cells = append(cells, worldtest.Cell{X: c.X, Z: c.Z, Root: worldtest.Terrain(c, n)})
	}
	b.Region(world.Overworld, "region", 0, 0, cells...)

	tally := &scan.Tally{}
	e := &scan.Engine{Progress: tally, Weight: 2}
	var seen []scan.Match
	after := func(f *region.File, c world.Container, ms []scan.Match, p scan.Progress) error {
		seen = ms
		for _, m := range ms {
			if err := f.UnlinkChunk(m.Local.X, m.Local.Z); err != nil {
				return err
			}
			p.Add(1)
		}
		return nil
	}
	res, err := e.Run(context.Background(), containers(t, b, world.Overworld), inhabitedAtMost(0), after)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || len(res.Matches) != 3 {
		t.Fatalf("after saw %d matches, result %d", len(seen), len(res.Matches))
	}
	// 1020 empty cells * 2, then per cell: scan + (keep or delete).
	if tally.Steps[0] != 1020*2 {
		t.Fatalf("first step=%d", tally.Steps[0])
	}
	if tally.Count != 2*region.Cells || tally.Total != 2*region.Cells {
		t.Fatalf("progress=%d/%d", tally.Count, tally.Total)
	}
	last := 0
	for _, s := range tally.Steps {
		if s < 0 {
			t.Fatalf("negative step in %v", tally.Steps)
		}
		last += s
	}
	if last != tally.Count {
		t.Fatalf("steps do not sum to count")
	}
}

func TestRun_CancelStopsBeforeNextChunk(t *testing.T) {
	b := worldtest.New(t, "w")
	b.Region(world.Overworld, "region", 0, 0,
		worldtest.Cell{X: 0, Z: 0, Root: worldtest.Terrain(ident.ChunkPos{}, 0)},
		worldtest.Cell{X: 1, Z: 0, Root: worldtest.Terrain(ident.ChunkPos{X: 1}, 0)},
	)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	pred := scan.PredicateFunc(func(c *scan.Chunk) ([]scan.Hit, error) {
		calls++
		cancel()
		return nil, nil
	})
	e := &scan.Engine{}
	_, err := e.Run(ctx, containers(t, b, world.Overworld), pred, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("predicate ran %d times after cancel", calls)
	}
}

func TestRun_PredicateErrorIsFatal(t *testing.T) {
	b := worldtest.New(t, "w")
	b.Region(world.Overworld, "region", 0, 0, worldtest.Cell{Root: worldtest.Terrain(ident.ChunkPos{}, 0)})
	boom := errors.New("boom")
	e := &scan.Engine{}
	_, err := e.Run(context.Background(), containers(t, b, world.Overworld), scan.PredicateFunc(func(*scan.Chunk) ([]scan.Hit, error) {
		return nil, boom
	}), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
