// Package mutate applies deletions to region containers: whole chunks, whole
// files, or entries of a chunk's sub-record lists.
package mutate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Tnze/go-mc/nbt/dynbt"

	"mcworldtools/internal/chunk"
	"mcworldtools/internal/ident"
	"mcworldtools/internal/region"
)

var (
	// ErrUnreadable wraps a decode failure of a chunk targeted for rewrite.
	ErrUnreadable = errors.New("chunk unreadable")
	// ErrNotPopulated is returned when a targeted cell holds no chunk.
	ErrNotPopulated = errors.New("cell not populated")
)

// Journal operations.
const (
	OpUnlink     = "unlink_chunk"
	OpDeleteFile = "delete_file"
	OpRewrite    = "rewrite_chunk"
)

// Entry describes one applied mutation.
type Entry struct {
	Time    time.Time       `json:"time"`
	Op      string          `json:"op"`
	Path    string          `json:"path"`
	Cell    *ident.ChunkPos `json:"cell,omitempty"`
	Chunks  int             `json:"chunks,omitempty"`
	Removed int             `json:"removed,omitempty"`
}

// Journal receives every applied mutation.
type Journal interface {
	Record(Entry) error
}

// Counter is credited one unit per deleted or rewritten chunk.
type Counter interface {
	Add(n int)
}

// Mutator holds the optional collaborators of the delete operations. The zero
// value is ready to use.
type Mutator struct {
	Journal Journal
	Now     func() time.Time
}

// Deletion summarizes DeleteChunks.
type Deletion struct {
	Removed     int
	FileDeleted bool
}

// DeleteChunks removes the given cells from f. When they cover every
// populated cell the file itself is closed and deleted instead.
func (m *Mutator) DeleteChunks(f *region.File, cells []ident.ChunkPos, p Counter) (Deletion, error) {
	seen := make(map[ident.ChunkPos]bool, len(cells))
	targets := make([]ident.ChunkPos, 0, len(cells))
	for _, c := range cells {
		if seen[c] {
			continue
		}
		if !f.Exists(c.X, c.Z) {
			return Deletion{}, fmt.Errorf("%s chunk %s: %w", f.Path(), c, ErrNotPopulated)
		}
		seen[c] = true
		targets = append(targets, c)
	}
	if len(targets) == 0 {
		return Deletion{}, nil
	}

	total := f.ChunkCount()
	if len(targets) == total {
		if err := f.Close(); err != nil {
			return Deletion{}, fmt.Errorf("close %s: %w", f.Path(), err)
		}
		if err := os.Remove(f.Path()); err != nil {
			return Deletion{}, fmt.Errorf("delete %s: %w", f.Path(), err)
		}
		credit(p, len(targets))
		d := Deletion{Removed: len(targets), FileDeleted: true}
		return d, m.record(Entry{Op: OpDeleteFile, Path: f.Path(), Chunks: total})
	}

	var d Deletion
	for _, c := range targets {
		if err := f.UnlinkChunk(c.X, c.Z); err != nil {
			return d, fmt.Errorf("%s chunk %s: %w", f.Path(), c, err)
		}
		d.Removed++
		credit(p, 1)
		cell := c
		if err := m.record(Entry{Op: OpUnlink, Path: f.Path(), Cell: &cell}); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Selector picks the sub-record list of a normalized chunk, such as
// chunk.View.BlockEntities.
type Selector func(chunk.View) (chunk.Records, bool)

// RecordPredicate reports whether a sub-record should be removed. It only
// sees compound entries.
type RecordPredicate func(*dynbt.Value) bool

// DeleteSubRecords removes matching entries from the selected list of the
// chunk at cell and rewrites the chunk only if something was removed. A
// chunk without the list is left alone.
func (m *Mutator) DeleteSubRecords(f *region.File, cell ident.ChunkPos, sel Selector, pred RecordPredicate, p Counter) (int, error) {
	root, err := f.ReadChunk(cell.X, cell.Z)
	if err != nil {
		return 0, fmt.Errorf("%s chunk %s: %w: %v", f.Path(), cell, ErrUnreadable, err)
	}
	list, ok := sel(chunk.Normalize(root))
	if !ok {
		return 0, nil
	}
	removed := list.Remove(pred)
	if removed == 0 {
		return 0, nil
	}
	if err := f.WriteChunk(cell.X, cell.Z, root); err != nil {
		return 0, fmt.Errorf("%s chunk %s: %w", f.Path(), cell, err)
	}
	credit(p, 1)
	c := cell
	if err := m.record(Entry{Op: OpRewrite, Path: f.Path(), Cell: &c, Removed: removed}); err != nil {
		return removed, err
	}
	return removed, nil
}

func (m *Mutator) record(e Entry) error {
	if m == nil || m.Journal == nil {
		return nil
	}
	if m.Now != nil {
		e.Time = m.Now()
	} else {
		e.Time = time.Now().UTC()
	}
	if err := m.Journal.Record(e); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func credit(p Counter, n int) {
	if p != nil {
		p.Add(n)
	}
}
