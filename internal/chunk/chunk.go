// Package chunk normalizes decoded chunk roots across format versions so the
// scanners never branch on legacy field names themselves.
package chunk

import (
	"github.com/Tnze/go-mc/nbt/dynbt"
	"github.com/google/uuid"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/nbt"
)

// Field names that differ between format versions.
const (
	legacyWrapper       = "Level"
	blockEntitiesModern = "block_entities"
	blockEntitiesLegacy = "TileEntities"
	entitiesKey         = "Entities"
	inhabitedKey        = "InhabitedTime"
)

// View is a decoded chunk with its record tree located. Root is what gets
// written back; Data is the compound that actually holds the chunk fields.
type View struct {
	Root        *dynbt.Value
	Data        *dynbt.Value
	Legacy      bool
	DataVersion int32
}

// Normalize unwraps the pre-1.18 "Level" compound when present.
func Normalize(root *dynbt.Value) View {
	v := View{Root: root, Data: root}
	if dv, ok := nbt.Int(root, "DataVersion"); ok {
		v.DataVersion = int32(dv)
	}
	if lvl, ok := nbt.Child(root, legacyWrapper); ok {
		v.Data = lvl
		v.Legacy = true
	}
	return v
}

func (v View) InhabitedTime() (int64, bool) {
	return nbt.Int(v.Data, inhabitedKey)
}

// Records is a sub-record list located inside a chunk.
type Records struct {
	parent *dynbt.Value
	key    string
	items  []*dynbt.Value
}

func (v View) records(key string) (Records, bool) {
	items, ok := nbt.List(v.Data, key)
	if !ok {
		return Records{}, false
	}
	return Records{parent: v.Data, key: key, items: items}, true
}

func (r Records) Len() int { return len(r.items) }

func (r Records) At(i int) *dynbt.Value { return r.items[i] }

// Remove drops the compound entries matching drop and stores the shortened
// list back in the chunk. The chunk is untouched when nothing matches.
func (r *Records) Remove(drop func(*dynbt.Value) bool) int {
	kept := make([]*dynbt.Value, 0, len(r.items))
	for _, it := range r.items {
		if nbt.IsCompound(it) && drop(it) {
			continue
		}
		kept = append(kept, it)
	}
	removed := len(r.items) - len(kept)
	if removed > 0 {
		r.parent.Set(r.key, dynbt.NewList(kept...))
		r.items = kept
	}
	return removed
}

// BlockEntities returns the block entity list under either of its names.
func (v View) BlockEntities() (Records, bool) {
	if r, ok := v.records(blockEntitiesModern); ok {
		return r, true
	}
	return v.records(blockEntitiesLegacy)
}

// Entities returns the entity list of a region chunk (pre-1.17) or of an
// entities-folder chunk.
func (v View) Entities() (Records, bool) {
	return v.records(entitiesKey)
}

// Position is the absolute chunk position stored inside the chunk itself:
// xPos/zPos for terrain chunks, the Position int pair for entity chunks.
func (v View) Position() (ident.ChunkPos, bool) {
	x, okX := nbt.Int(v.Data, "xPos")
	z, okZ := nbt.Int(v.Data, "zPos")
	if okX && okZ {
		return ident.ChunkPos{X: int(x), Z: int(z)}, true
	}
	if p, ok := nbt.IntArray(v.Data, "Position"); ok && len(p) == 2 {
		return ident.ChunkPos{X: int(p[0]), Z: int(p[1])}, true
	}
	return ident.ChunkPos{}, false
}

// EntityUUID reads an entity's unique id from the four-int UUID array, or
// from the UUIDMost/UUIDLeast longs of older worlds.
func EntityUUID(e *dynbt.Value) (uuid.UUID, bool) {
	if a, ok := nbt.IntArray(e, "UUID"); ok && len(a) == 4 {
		return ident.UUIDFromInts([4]int32{a[0], a[1], a[2], a[3]}), true
	}
	most, okM := nbt.Int(e, "UUIDMost")
	least, okL := nbt.Int(e, "UUIDLeast")
	if okM && okL {
		return ident.UUIDFromMostLeast(most, least), true
	}
	return uuid.Nil, false
}

// EntityPos reads the three doubles of an entity's Pos list.
func EntityPos(e *dynbt.Value) ([3]float64, bool) {
	var out [3]float64
	l, ok := nbt.List(e, "Pos")
	if !ok || len(l) != 3 {
		return out, false
	}
	for i := range out {
		f, ok := nbt.AsFloat(l[i])
		if !ok {
			return out, false
		}
		out[i] = f
	}
	return out, true
}

// Flag reads a byte flag such as "powered"; ok is false when it is absent.
func Flag(c *dynbt.Value, name string) (value, ok bool) {
	n, ok := nbt.Int(c, name)
	if !ok {
		return false, false
	}
	return n == 1, true
}
