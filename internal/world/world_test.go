package world_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/nbt"
	"mcworldtools/internal/world"
	"mcworldtools/internal/world/worldtest"
)

func TestResolve_ProbesKnownFolders(t *testing.T) {
	b := worldtest.New(t, "w")
	b.Folder(world.Overworld, "region")
	b.Folder(world.Overworld, "entities")
	b.Folder(world.End, "region")
	// A file where a folder is expected does not make the nether present.
	if err := os.MkdirAll(filepath.Join(b.Root, "DIM-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b.Root, "DIM-1", "region"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := world.Resolve(b.Root)
	if got := l.Dimensions(); len(got) != 2 || got[0] != world.Overworld || got[1] != world.End {
		t.Fatalf("dimensions=%v", got)
	}
	ow := l[world.Overworld]
	if ow.Region != filepath.Join(b.Root, "region") || ow.Entities != filepath.Join(b.Root, "entities") {
		t.Fatalf("overworld folders=%+v", ow)
	}
	if ow.EntitySource() != ow.Entities {
		t.Fatalf("EntitySource should prefer the entities folder")
	}
	end := l[world.End]
	if end.Entities != "" || end.EntitySource() != end.Region {
		t.Fatalf("end folders=%+v source=%q", end, end.EntitySource())
	}

	if l := world.Resolve(t.TempDir()); len(l) != 0 {
		t.Fatalf("empty dir resolved to %v", l)
	}
}

func TestOpen_ValidatesLevelDat(t *testing.T) {
	b := worldtest.New(t, "Survival")
	w, err := world.Open(b.Root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if w.LevelName != "Survival" || w.Version != "1.20.1" || !filepath.IsAbs(w.Abs) {
		t.Fatalf("world=%+v", w)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := world.Open(file); !errors.Is(err, world.ErrNotDirectory) {
		t.Fatalf("file: err=%v want ErrNotDirectory", err)
	}
	if _, err := world.Open(t.TempDir()); !errors.Is(err, world.ErrNotWorld) {
		t.Fatalf("no level.dat: err=%v want ErrNotWorld", err)
	}

	b.WriteLevel(nbt.NewCompound(nbt.Field{Name: "Data", Value: nbt.NewCompound()}))
	if _, err := world.Open(b.Root); !errors.Is(err, world.ErrNotWorld) {
		t.Fatalf("missing LevelName: err=%v want ErrNotWorld", err)
	}

	if err := os.WriteFile(filepath.Join(b.Root, "level.dat"), []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := world.Open(b.Root); !errors.Is(err, world.ErrNotWorld) {
		t.Fatalf("garbage level.dat: err=%v want ErrNotWorld", err)
	}
}

func TestListContainers_FiltersAndSorts(t *testing.T) {
	b := worldtest.New(t, "w")
	chunk := worldtest.Cell{Root: worldtest.Terrain(ident.ChunkPos{}, 0)}
	b.Region(world.Overworld, "region", 1, 0, chunk)
	b.Region(world.Overworld, "region", -1, 5, chunk)
	b.Region(world.Overworld, "region", -1, -2, chunk)
	dir := b.Folder(world.Overworld, "region")
	for _, name := range []string{"r.0.0.mcr", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "r.9.9.mca"), 0o755); err != nil {
		t.Fatal(err)
	}
	worldtest.WriteRegion(t, filepath.Join(dir, "backup.mca"), chunk)

	cs, err := world.ListContainers(dir, world.Overworld)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	want := []string{"r.-1.-2.mca", "r.-1.5.mca", "r.1.0.mca", "backup.mca"}
	if len(cs) != len(want) {
		t.Fatalf("got %d containers want %d: %+v", len(cs), len(want), cs)
	}
	var sum int64
	for i, c := range cs {
		if c.Name != want[i] || c.Dimension != world.Overworld {
			t.Fatalf("container %d=%+v want %s", i, c, want[i])
		}
		if c.Size != 3*4096 {
			t.Fatalf("%s size=%d", c.Name, c.Size)
		}
		sum += c.Size
	}
	if cs[0].RX != -1 || cs[0].RZ != -2 || !cs[0].HasCoords || cs[3].HasCoords {
		t.Fatalf("coords not parsed: %+v", cs)
	}

	if got := world.TotalBytes(cs); got != sum {
		t.Fatalf("TotalBytes=%d want %d", got, sum)
	}
	if err := os.Remove(cs[0].Path); err != nil {
		t.Fatal(err)
	}
	if got := world.TotalBytes(cs); got != sum-cs[0].Size {
		t.Fatalf("TotalBytes after delete=%d want %d", got, sum-cs[0].Size)
	}

	if _, err := world.ListContainers(filepath.Join(dir, "missing"), world.Overworld); err == nil {
		t.Fatalf("missing folder listed")
	}
}
