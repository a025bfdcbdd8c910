// Package scan walks the populated cells of region containers, evaluates a
// predicate against each decoded chunk and collects matches and diagnostics.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"

	"mcworldtools/internal/chunk"
	"mcworldtools/internal/ident"
	"mcworldtools/internal/region"
	"mcworldtools/internal/world"
)

// ErrMissingField marks a chunk that lacks a field the predicate needs. The
// engine turns it into a diagnostic and moves on.
var ErrMissingField = errors.New("missing field")

// Chunk is what a predicate sees for one populated cell.
type Chunk struct {
	Dimension world.Dimension
	Container world.Container
	Local     ident.ChunkPos
	Absolute  ident.ChunkPos
	View      chunk.View
}

// Hit is one positive predicate result. Index is the sub-record index inside
// the chunk's list, or -1 when the whole chunk matched.
type Hit struct {
	Index  int
	Fields any
}

type Predicate interface {
	Evaluate(c *Chunk) ([]Hit, error)
}

type PredicateFunc func(c *Chunk) ([]Hit, error)

func (f PredicateFunc) Evaluate(c *Chunk) ([]Hit, error) { return f(c) }

type Match struct {
	Dimension world.Dimension
	Container string
	Local     ident.ChunkPos
	Absolute  ident.ChunkPos
	Index     int
	Fields    any
}

type Diagnostic struct {
	Dimension world.Dimension
	Container string
	Local     ident.ChunkPos
	Absolute  ident.ChunkPos
	Err       error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("Chunk %d %d (in world at %d %d) in the region file %q could not be read.",
		d.Local.X, d.Local.Z, d.Absolute.X, d.Absolute.Z, d.Container)
}

// Result is the outcome of one Run. Chunks is the number of populated cells
// across all containers at open time; Scanned counts the cells visited.
type Result struct {
	Matches     []Match
	Diagnostics []Diagnostic
	Chunks      int
	Scanned     int
}

// ContainerFunc runs after a container has been scanned, with the file still
// open. matches holds only that container's matches. Work it reports to p is
// part of the container's progress share.
type ContainerFunc func(f *region.File, c world.Container, matches []Match, p Progress) error

// Engine scans containers one at a time. Weight is the number of progress
// units a populated cell is worth: 1 for scan-only passes, 2 when a delete
// decision follows the scan.
type Engine struct {
	Progress Progress
	Logger   *log.Logger
	Weight   int
}

// Run scans containers in the given order. When after is nil the files are
// opened read-only. A cancelled ctx stops the run before the next cell.
func (e *Engine) Run(ctx context.Context, containers []world.Container, pred Predicate, after ContainerFunc) (Result, error) {
	var res Result
	weight := e.Weight
	if weight < 1 {
		weight = 1
	}
	sink := e.Progress
	if sink == nil {
		sink = Discard
	}
	sink.Start(len(containers) * region.Cells * weight)
	defer sink.Done()

	for _, c := range containers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cp := &counter{sink: sink}
		err := e.container(ctx, c, pred, after, weight, cp, &res)
		if err != nil {
			return res, err
		}
		if rest := region.Cells*weight - cp.n; rest > 0 {
			cp.Add(rest)
		}
	}
	return res, nil
}

func (e *Engine) container(ctx context.Context, c world.Container, pred Predicate, after ContainerFunc, weight int, p *counter, res *Result) error {
	var (
		f   *region.File
		err error
	)
	if after != nil {
		f, err = region.Open(c.Path)
	} else {
		f, err = region.OpenReadOnly(c.Path)
	}
	if err != nil {
		return fmt.Errorf("open region %s: %w", c.Path, err)
	}
	defer f.Close()

	cells := f.Populated()
	res.Chunks += len(cells)
	p.Add((region.Cells - len(cells)) * weight)

	first := len(res.Matches)
	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return err
		}
		local := ident.ChunkPos{X: cell.X, Z: cell.Z}
		ch := &Chunk{Dimension: c.Dimension, Container: c, Local: local, Absolute: local}
		if c.HasCoords {
			ch.Absolute = ident.AbsoluteChunk(c.RX, c.RZ, local)
		}
		res.Scanned++

		root, err := f.ReadChunk(cell.X, cell.Z)
		if err != nil {
			e.diagnose(res, ch, err)
			p.Add(weight)
			continue
		}
		ch.View = chunk.Normalize(root)
		if !c.HasCoords {
			if pos, ok := ch.View.Position(); ok {
				ch.Absolute = pos
			}
		}

		hits, err := pred.Evaluate(ch)
		if errors.Is(err, ErrMissingField) {
			e.diagnose(res, ch, err)
			p.Add(weight)
			continue
		}
		if err != nil {
			return fmt.Errorf("chunk %s in %s: %w", local, c.Name, err)
		}
		p.Add(1)
		if len(hits) == 0 && weight > 1 {
			// Nothing to delete here: the decision is made.
			p.Add(weight - 1)
		}
		for _, h := range hits {
			res.Matches = append(res.Matches, Match{
				Dimension: c.Dimension,
				Container: c.Name,
				Local:     local,
				Absolute:  ch.Absolute,
				Index:     h.Index,
				Fields:    h.Fields,
			})
		}
	}

	if after == nil {
		return nil
	}
	return after(f, c, res.Matches[first:], p)
}

func (e *Engine) diagnose(res *Result, ch *Chunk, err error) {
	d := Diagnostic{
		Dimension: ch.Dimension,
		Container: ch.Container.Name,
		Local:     ch.Local,
		Absolute:  ch.Absolute,
		Err:       err,
	}
	res.Diagnostics = append(res.Diagnostics, d)
	if e.Logger != nil {
		e.Logger.Printf("%s (%v)", d, err)
	}
}

// counter forwards progress and remembers how much one container reported.
type counter struct {
	sink Progress
	n    int
}

func (c *counter) Start(int) {}
func (c *counter) Done()     {}
func (c *counter) Add(n int) {
	c.n += n
	c.sink.Add(n)
}
