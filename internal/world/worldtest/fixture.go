// Package worldtest builds throwaway world directories for tests: a level.dat
// plus region files holding hand-made chunks.
package worldtest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tnze/go-mc/nbt/dynbt"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/nbt"
	"mcworldtools/internal/region"
	"mcworldtools/internal/world"
)

// Cell places a chunk root at a region-relative cell.
type Cell struct {
	X, Z int
	Root *dynbt.Value
}

// Builder writes one world under a temp directory.
type Builder struct {
	T    *testing.T
	Root string
}

// New creates <tmp>/<name> with a valid level.dat.
func New(t *testing.T, name string) *Builder {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir world: %v", err)
	}
	b := &Builder{T: t, Root: root}
	b.WriteLevel(nbt.NewCompound(nbt.Field{Name: "Data", Value: nbt.NewCompound(
		nbt.Field{Name: "LevelName", Value: dynbt.NewString(name)},
		nbt.Field{Name: "Version", Value: nbt.NewCompound(
			nbt.Field{Name: "Name", Value: dynbt.NewString("1.20.1")},
		)},
	)}))
	return b
}

// WriteLevel replaces level.dat with the given root, gzip-compressed.
func (b *Builder) WriteLevel(root *dynbt.Value) {
	b.T.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := nbt.Encode(zw, root); err != nil {
		b.T.Fatalf("encode level.dat: %v", err)
	}
	if err := zw.Close(); err != nil {
		b.T.Fatalf("gzip level.dat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(b.Root, "level.dat"), buf.Bytes(), 0o644); err != nil {
		b.T.Fatalf("write level.dat: %v", err)
	}
}

// Folder returns (and creates) a dimension folder, kind being "region" or
// "entities".
func (b *Builder) Folder(dim world.Dimension, kind string) string {
	b.T.Helper()
	var dir string
	switch dim {
	case world.Nether:
		dir = filepath.Join(b.Root, "DIM-1", kind)
	case world.End:
		dir = filepath.Join(b.Root, "DIM1", kind)
	default:
		dir = filepath.Join(b.Root, kind)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.T.Fatalf("mkdir %s: %v", dir, err)
	}
	return dir
}

// Region writes r.<rx>.<rz>.mca with the given cells and returns its path.
func (b *Builder) Region(dim world.Dimension, kind string, rx, rz int, cells ...Cell) string {
	b.T.Helper()
	path := filepath.Join(b.Folder(dim, kind), region.Name(rx, rz))
	WriteRegion(b.T, path, cells...)
	return path
}

// WriteRegion creates a region file at path holding cells.
func WriteRegion(t *testing.T, path string, cells ...Cell) {
	t.Helper()
	f, err := region.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	for _, c := range cells {
		if err := f.WriteChunk(c.X, c.Z, c.Root); err != nil {
			t.Fatalf("write chunk %d %d: %v", c.X, c.Z, err)
		}
	}
}

// Terrain is a modern terrain chunk at absolute chunk pos.
func Terrain(pos ident.ChunkPos, inhabited int64, blockEntities ...*dynbt.Value) *dynbt.Value {
	return nbt.NewCompound(
		nbt.Field{Name: "DataVersion", Value: dynbt.NewInt(3465)},
		nbt.Field{Name: "xPos", Value: dynbt.NewInt(int32(pos.X))},
		nbt.Field{Name: "zPos", Value: dynbt.NewInt(int32(pos.Z))},
		nbt.Field{Name: "Status", Value: dynbt.NewString("minecraft:full")},
		nbt.Field{Name: "InhabitedTime", Value: dynbt.NewLong(inhabited)},
		nbt.Field{Name: "block_entities", Value: dynbt.NewList(blockEntities...)},
	)
}

// LegacyTerrain is a pre-1.18 chunk with everything under "Level".
func LegacyTerrain(pos ident.ChunkPos, inhabited int64, tileEntities []*dynbt.Value, entities []*dynbt.Value) *dynbt.Value {
	return nbt.NewCompound(
		nbt.Field{Name: "DataVersion", Value: dynbt.NewInt(1343)},
		nbt.Field{Name: "Level", Value: nbt.NewCompound(
			nbt.Field{Name: "xPos", Value: dynbt.NewInt(int32(pos.X))},
			nbt.Field{Name: "zPos", Value: dynbt.NewInt(int32(pos.Z))},
			nbt.Field{Name: "InhabitedTime", Value: dynbt.NewLong(inhabited)},
			nbt.Field{Name: "TileEntities", Value: dynbt.NewList(tileEntities...)},
			nbt.Field{Name: "Entities", Value: dynbt.NewList(entities...)},
		)},
	)
}

// EntityChunk is a 1.17+ entities-folder chunk.
func EntityChunk(pos ident.ChunkPos, entities ...*dynbt.Value) *dynbt.Value {
	return nbt.NewCompound(
		nbt.Field{Name: "DataVersion", Value: dynbt.NewInt(3465)},
		nbt.Field{Name: "Position", Value: dynbt.NewIntArray([]int32{int32(pos.X), int32(pos.Z)})},
		nbt.Field{Name: "Entities", Value: dynbt.NewList(entities...)},
	)
}

// Entity is a modern entity record with a four-int UUID.
func Entity(id string, u uuid.UUID, pos [3]float64) *dynbt.Value {
	ints := ident.UUIDToInts(u)
	return nbt.NewCompound(
		nbt.Field{Name: "id", Value: dynbt.NewString(id)},
		nbt.Field{Name: "UUID", Value: dynbt.NewIntArray(ints[:])},
		nbt.Field{Name: "Pos", Value: dynbt.NewList(dynbt.NewDouble(pos[0]), dynbt.NewDouble(pos[1]), dynbt.NewDouble(pos[2]))},
		nbt.Field{Name: "Health", Value: dynbt.NewFloat(10)},
	)
}

// LegacyEntity uses the UUIDMost/UUIDLeast pair.
func LegacyEntity(id string, u uuid.UUID, pos [3]float64) *dynbt.Value {
	most, least := ident.UUIDToMostLeast(u)
	return nbt.NewCompound(
		nbt.Field{Name: "id", Value: dynbt.NewString(id)},
		nbt.Field{Name: "UUIDMost", Value: dynbt.NewLong(most)},
		nbt.Field{Name: "UUIDLeast", Value: dynbt.NewLong(least)},
		nbt.Field{Name: "Pos", Value: dynbt.NewList(dynbt.NewDouble(pos[0]), dynbt.NewDouble(pos[1]), dynbt.NewDouble(pos[2]))},
	)
}

// CommandBlock is a command block entity; powered/auto are omitted when nil.
func CommandBlock(id string, at ident.BlockPos, command string, powered, auto *bool) *dynbt.Value {
	c := nbt.NewCompound(
		nbt.Field{Name: "id", Value: dynbt.NewString(id)},
		nbt.Field{Name: "x", Value: dynbt.NewInt(int32(at.X))},
		nbt.Field{Name: "y", Value: dynbt.NewInt(int32(at.Y))},
		nbt.Field{Name: "z", Value: dynbt.NewInt(int32(at.Z))},
		nbt.Field{Name: "CustomName", Value: dynbt.NewString(`{"text":"@"}`)},
		nbt.Field{Name: "Command", Value: dynbt.NewString(command)},
	)
	if powered != nil {
		c.Set("powered", dynbt.NewBoolean(*powered))
	}
	if auto != nil {
		c.Set("auto", dynbt.NewBoolean(*auto))
	}
	return c
}

// Bool returns a pointer for CommandBlock's optional flags.
func Bool(v bool) *bool { return &v }

