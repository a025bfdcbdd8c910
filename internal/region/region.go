// Package region reads and edits Anvil region files: a 32x32 grid of
// independently compressed NBT chunks behind two 4 KiB header sectors.
package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Tnze/go-mc/nbt/dynbt"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"mcworldtools/internal/nbt"
)

const (
	SectorSize = 4096
	Width      = 32
	Cells      = Width * Width

	headerSectors = 2
	// maxChunkBytes mirrors the 255-sector cap of the one-byte sector count.
	maxChunkBytes = 255 * SectorSize
)

// Compression is the scheme byte stored in front of every chunk payload.
type Compression byte

const (
	GZip         Compression = 1
	Zlib         Compression = 2
	Uncompressed Compression = 3

	externalFlag = 0x80
)

var (
	ErrNoChunk     = errors.New("region: chunk not present")
	ErrExternal    = errors.New("region: chunk stored in external .mcc file")
	ErrCompression = errors.New("region: unsupported compression")
	ErrCorrupt     = errors.New("region: corrupt chunk header")
	ErrReadOnly    = errors.New("region: opened read-only")
	ErrClosed      = errors.New("region: file closed")
)

// Cell addresses one chunk slot by its region-relative coordinates.
type Cell struct {
	X, Z int
}

func (c Cell) index() int { return (c.X & 31) + (c.Z&31)*Width }

func cellAt(i int) Cell { return Cell{X: i % Width, Z: i / Width} }

// File is an open region container. It is not safe for concurrent use.
type File struct {
	f        *os.File
	path     string
	readOnly bool

	locations  [Cells]uint32
	timestamps [Cells]uint32
	used       []bool // sector occupancy, index = sector number
}

// Open opens an existing region file for reading and writing.
func Open(path string) (*File, error) {
	return open(path, os.O_RDWR, false)
}

// OpenReadOnly opens a region file for scanning only.
func OpenReadOnly(path string) (*File, error) {
	return open(path, os.O_RDONLY, true)
}

func open(path string, flag int, ro bool) (*File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	r := &File{f: f, path: path, readOnly: ro}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Create writes a new empty region file, truncating any existing one.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(make([]byte, headerSectors*SectorSize)); err != nil {
		_ = f.Close()
		return nil, err
	}
	r := &File{f: f, path: path, used: []bool{true, true}}
	return r, nil
}

func (r *File) readHeader() error {
	st, err := r.f.Stat()
	if err != nil {
		return err
	}
	size := st.Size()
	if size == 0 {
		// Minecraft leaves zero-length region files behind; treat them as empty.
		r.used = []bool{true, true}
		return nil
	}
	if size < headerSectors*SectorSize {
		return fmt.Errorf("%w: file is %d bytes, shorter than the header", ErrCorrupt, size)
	}
	hdr := make([]byte, headerSectors*SectorSize)
	if _, err := io.ReadFull(io.NewSectionReader(r.f, 0, int64(len(hdr))), hdr); err != nil {
		return err
	}
	for i := 0; i < Cells; i++ {
		r.locations[i] = binary.BigEndian.Uint32(hdr[i*4:])
		r.timestamps[i] = binary.BigEndian.Uint32(hdr[SectorSize+i*4:])
	}

	sectors := int((size + SectorSize - 1) / SectorSize)
	r.used = make([]bool, sectors)
	r.used[0], r.used[1] = true, true
	for i, loc := range r.locations {
		if loc == 0 {
			continue
		}
		off, n := sectorsOf(loc)
		if off < headerSectors || n == 0 || off+n > sectors {
			// Point outside the file: keep the slot but never read it as valid.
			r.locations[i] = 0
			continue
		}
		r.mark(off, n, true)
	}
	return nil
}

func sectorsOf(loc uint32) (offset, count int) {
	return int(loc >> 8), int(loc & 0xff)
}

func (r *File) mark(off, n int, v bool) {
	for len(r.used) < off+n {
		r.used = append(r.used, false)
	}
	for i := off; i < off+n; i++ {
		r.used[i] = v
	}
}

func (r *File) Path() string { return r.path }

// Close releases the file handle. Calling it twice is harmless.
func (r *File) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// ChunkCount is the number of populated cells.
func (r *File) ChunkCount() int {
	n := 0
	for _, loc := range r.locations {
		if loc != 0 {
			n++
		}
	}
	return n
}

// Populated lists present cells in header order (x fastest, then z).
func (r *File) Populated() []Cell {
	out := make([]Cell, 0, r.ChunkCount())
	for i, loc := range r.locations {
		if loc != 0 {
			out = append(out, cellAt(i))
		}
	}
	return out
}

func (r *File) Exists(x, z int) bool {
	return r.locations[Cell{x, z}.index()] != 0
}

// Timestamp returns the last-write time recorded for a cell.
func (r *File) Timestamp(x, z int) time.Time {
	return time.Unix(int64(r.timestamps[Cell{x, z}.index()]), 0)
}

// ReadRaw returns the still-compressed payload of a chunk and its scheme.
func (r *File) ReadRaw(x, z int) ([]byte, Compression, error) {
	if r.f == nil {
		return nil, 0, ErrClosed
	}
	loc := r.locations[Cell{x, z}.index()]
	if loc == 0 {
		return nil, 0, ErrNoChunk
	}
	off, n := sectorsOf(loc)
	var hdr [5]byte
	if _, err := r.f.ReadAt(hdr[:], int64(off)*SectorSize); err != nil {
		return nil, 0, fmt.Errorf("chunk %d %d: %w", x, z, err)
	}
	length := int(binary.BigEndian.Uint32(hdr[:4]))
	scheme := Compression(hdr[4])
	if scheme&externalFlag != 0 {
		return nil, scheme, ErrExternal
	}
	if length < 1 || length+4 > n*SectorSize {
		return nil, scheme, fmt.Errorf("%w: chunk %d %d length %d in %d sectors", ErrCorrupt, x, z, length, n)
	}
	data := make([]byte, length-1)
	if _, err := r.f.ReadAt(data, int64(off)*SectorSize+5); err != nil {
		return nil, scheme, fmt.Errorf("chunk %d %d: %w", x, z, err)
	}
	return data, scheme, nil
}

// ReadChunk decodes the NBT root of a chunk.
func (r *File) ReadChunk(x, z int) (*dynbt.Value, error) {
	data, scheme, err := r.ReadRaw(x, z)
	if err != nil {
		return nil, err
	}
	rd, err := decompressor(scheme, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("chunk %d %d: %w", x, z, err)
	}
	defer rd.Close()
	root, err := nbt.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("chunk %d %d: %w", x, z, err)
	}
	return root, nil
}

func decompressor(scheme Compression, src io.Reader) (io.ReadCloser, error) {
	switch scheme {
	case GZip:
		return gzip.NewReader(src)
	case Zlib:
		return zlib.NewReader(src)
	case Uncompressed:
		return io.NopCloser(src), nil
	}
	return nil, fmt.Errorf("%w: scheme %d", ErrCompression, scheme)
}

// WriteChunk zlib-compresses root and stores it at (x, z).
func (r *File) WriteChunk(x, z int, root *dynbt.Value) error {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if err := nbt.Encode(zw, root); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return r.WriteRaw(x, z, Zlib, buf.Bytes())
}

// WriteRaw stores an already compressed payload. A payload that fits the
// sectors the chunk already occupies is written over them; a larger one lands
// in free sectors before the header entry is switched over. Sectors left free
// at the end of the file are cut off.
func (r *File) WriteRaw(x, z int, scheme Compression, data []byte) error {
	if r.f == nil {
		return ErrClosed
	}
	if r.readOnly {
		return ErrReadOnly
	}
	total := len(data) + 5
	if total > maxChunkBytes {
		return fmt.Errorf("region: chunk %d %d is %d bytes, larger than %d", x, z, total, maxChunkBytes)
	}
	need := (total + SectorSize - 1) / SectorSize
	i := Cell{x, z}.index()
	old := r.locations[i]
	off := -1
	if old != 0 {
		if oo, on := sectorsOf(old); need <= on {
			off = oo
		}
	}
	if off < 0 {
		off = r.allocate(need)
	}

	sector := make([]byte, need*SectorSize)
	binary.BigEndian.PutUint32(sector, uint32(len(data)+1))
	sector[4] = byte(scheme)
	copy(sector[5:], data)
	if _, err := r.f.WriteAt(sector, int64(off)*SectorSize); err != nil {
		return err
	}

	if old != 0 {
		oo, on := sectorsOf(old)
		r.mark(oo, on, false)
	}
	r.mark(off, need, true)
	r.locations[i] = uint32(off)<<8 | uint32(need)
	r.timestamps[i] = uint32(time.Now().Unix())
	if err := r.writeEntry(i); err != nil {
		return err
	}
	return r.trimTail()
}

// allocate returns the first run of n free sectors, or the end of the file.
func (r *File) allocate(n int) int {
	run := 0
	for s := headerSectors; s < len(r.used); s++ {
		if r.used[s] {
			run = 0
			continue
		}
		run++
		if run == n {
			return s - n + 1
		}
	}
	return len(r.used) - run
}

// UnlinkChunk clears the header entry of a cell. The sectors it occupied
// become free for later writes, and the file shrinks when they were its last.
func (r *File) UnlinkChunk(x, z int) error {
	if r.f == nil {
		return ErrClosed
	}
	if r.readOnly {
		return ErrReadOnly
	}
	i := Cell{x, z}.index()
	loc := r.locations[i]
	if loc == 0 {
		return ErrNoChunk
	}
	off, n := sectorsOf(loc)
	r.mark(off, n, false)
	r.locations[i] = 0
	r.timestamps[i] = 0
	if err := r.writeEntry(i); err != nil {
		return err
	}
	return r.trimTail()
}

// trimTail truncates the file after its last used sector.
func (r *File) trimTail() error {
	end := len(r.used)
	for end > headerSectors && !r.used[end-1] {
		end--
	}
	if end == len(r.used) {
		return nil
	}
	if err := r.f.Truncate(int64(end) * SectorSize); err != nil {
		return fmt.Errorf("truncate %s: %w", r.path, err)
	}
	r.used = r.used[:end]
	return nil
}

func (r *File) writeEntry(i int) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], r.locations[i])
	if _, err := r.f.WriteAt(b[:], int64(i*4)); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b[:], r.timestamps[i])
	_, err := r.f.WriteAt(b[:], int64(SectorSize+i*4))
	return err
}
