// Package ident holds the coordinate and identifier conversions shared by the
// scanners: region-relative to absolute chunk positions, namespaced ids and
// the three interchangeable UUID encodings.
package ident

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RegionWidth is the number of chunks along one side of a region.
const RegionWidth = 32

const defaultNamespace = "minecraft:"

// ChunkPos is a chunk coordinate pair, either region-relative or absolute.
type ChunkPos struct {
	X int `json:"x" yaml:"x"`
	Z int `json:"z" yaml:"z"`
}

func (p ChunkPos) String() string { return fmt.Sprintf("%d %d", p.X, p.Z) }

// BlockPos is an absolute block coordinate.
type BlockPos struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

func (p BlockPos) String() string { return fmt.Sprintf("%d %d %d", p.X, p.Y, p.Z) }

// AbsoluteChunk maps a cell of region (rx, rz) to world chunk coordinates.
func AbsoluteChunk(rx, rz int, local ChunkPos) ChunkPos {
	return ChunkPos{X: rx*RegionWidth + local.X, Z: rz*RegionWidth + local.Z}
}

// RegionOf splits an absolute chunk position into its region and local cell.
func RegionOf(abs ChunkPos) (rx, rz int, local ChunkPos) {
	rx, lx := floorDiv(abs.X, RegionWidth)
	rz, lz := floorDiv(abs.Z, RegionWidth)
	return rx, rz, ChunkPos{X: lx, Z: lz}
}

func floorDiv(a, b int) (q, m int) {
	// b > 0
	q = a / b
	m = a % b
	if m < 0 {
		q--
		m += b
	}
	return q, m
}

// StripNamespace drops a leading "minecraft:" (case-insensitively). Other
// namespaces are kept.
func StripNamespace(id string) string {
	if len(id) >= len(defaultNamespace) && strings.EqualFold(id[:len(defaultNamespace)], defaultNamespace) {
		return id[len(defaultNamespace):]
	}
	return id
}

// CanonicalID lowercases and strips the default namespace, the form used to
// compare entity ids typed by users with ids stored in chunks.
func CanonicalID(id string) string {
	return StripNamespace(strings.ToLower(strings.TrimSpace(id)))
}

// SameID reports whether two ids name the same thing after canonicalization.
func SameID(a, b string) bool { return CanonicalID(a) == CanonicalID(b) }

// ParseUUID accepts the hyphenated 8-4-4-4-12 form in any case.
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if len(s) != 36 {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: want 8-4-4-4-12 hex digits", s)
	}
	return uuid.Parse(s)
}

// UUIDFromInts decodes the modern four-int array form (most significant int first).
func UUIDFromInts(v [4]int32) uuid.UUID {
	var u uuid.UUID
	for i, n := range v {
		binary.BigEndian.PutUint32(u[i*4:], uint32(n))
	}
	return u
}

// UUIDToInts is the inverse of UUIDFromInts; values above 2^31 wrap negative.
func UUIDToInts(u uuid.UUID) [4]int32 {
	var v [4]int32
	for i := range v {
		v[i] = int32(binary.BigEndian.Uint32(u[i*4:]))
	}
	return v
}

// UUIDFromMostLeast decodes the legacy UUIDMost/UUIDLeast long pair.
func UUIDFromMostLeast(most, least int64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[:8], uint64(most))
	binary.BigEndian.PutUint64(u[8:], uint64(least))
	return u
}

// UUIDToMostLeast is the inverse of UUIDFromMostLeast.
func UUIDToMostLeast(u uuid.UUID) (most, least int64) {
	return int64(binary.BigEndian.Uint64(u[:8])), int64(binary.BigEndian.Uint64(u[8:]))
}
