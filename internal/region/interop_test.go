package region_test

import (
	"bytes"
	"path/filepath"
	"sort"
	"testing"

	mcnbt "github.com/Tnze/go-mc/nbt"
	mcregion "github.com/Tnze/go-mc/save/region"
	"github.com/klauspost/compress/gzip"

	"mcworldtools/internal/nbt"
	"mcworldtools/internal/region"
)

// Regions produced by an independent writer must read back identically.
func TestReadsRegionWrittenByGoMC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	w, err := mcregion.Create(path)
	if err != nil {
		t.Fatalf("go-mc Create: %v", err)
	}
	inhabited := map[[2]int]int64{{0, 0}: 0, {1, 0}: 10, {2, 3}: 0, {31, 31}: 500}
	for c, v := range inhabited {
		if err := w.WriteSector(c[0], c[1], gzipChunk(t, c[0], c[1], v)); err != nil {
			t.Fatalf("WriteSector %v: %v", c, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("go-mc Close: %v", err)
	}

	r, err := region.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer r.Close()
	if r.ChunkCount() != len(inhabited) {
		t.Fatalf("ChunkCount=%d want %d", r.ChunkCount(), len(inhabited))
	}
	var got, want []int64
	for _, v := range inhabited {
		want = append(want, v)
	}
	for _, c := range r.Populated() {
		root, err := r.ReadChunk(c.X, c.Z)
		if err != nil {
			t.Fatalf("ReadChunk %v: %v", c, err)
		}
		v, ok := nbt.Int(root, "InhabitedTime")
		if !ok {
			t.Fatalf("cell %v lacks InhabitedTime", c)
		}
		got = append(got, v)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("InhabitedTime values %v want %v", got, want)
		}
	}
}

func gzipChunk(t *testing.T, x, z int, inhabited int64) []byte {
	t.Helper()
	chunk := map[string]any{
		"DataVersion":   int32(3465),
		"xPos":          int32(x),
		"zPos":          int32(z),
		"InhabitedTime": inhabited,
		"Status":        "minecraft:full",
	}
	var buf bytes.Buffer
	buf.WriteByte(1)
	gw := gzip.NewWriter(&buf)
	if err := mcnbt.NewEncoder(gw).Encode(chunk, ""); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}
