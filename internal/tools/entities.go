package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tnze/go-mc/nbt/dynbt"
	"github.com/google/uuid"

	"mcworldtools/internal/chunk"
	"mcworldtools/internal/ident"
	"mcworldtools/internal/mutate"
	"mcworldtools/internal/nbt"
	"mcworldtools/internal/region"
	"mcworldtools/internal/report"
	"mcworldtools/internal/scan"
	"mcworldtools/internal/world"
)

// RemoveBy selects which entities a removal targets.
type RemoveBy string

const (
	ByID   RemoveBy = "id"
	ByUUID RemoveBy = "uuid"
	ByAll  RemoveBy = "all"
)

func (r RemoveBy) Valid() bool { return r == ByID || r == ByUUID || r == ByAll }

// Entities finds or removes entity records.
type Entities struct {
	Action Action
	// ID filters by entity id after namespace stripping; empty means any.
	// Required when removing by id.
	ID string
	// Dimension limits the pass to one dimension; empty means all.
	Dimension world.Dimension
	// IncludeNBT adds the entity's fields to each result, restricted to
	// NBTKeys when that is non-empty.
	IncludeNBT bool
	NBTKeys    []string

	RemoveBy RemoveBy
	UUID     uuid.UUID
}

// EntityLoc is an entity position in its dimension.
type EntityLoc struct {
	Dimension string  `json:"dimension" yaml:"dimension"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Z         float64 `json:"z" yaml:"z"`
}

// EntityResult is one found entity. NBT is the projected record as a JSON
// string, "{}" when not requested.
type EntityResult struct {
	ID    string    `json:"id" yaml:"id"`
	UUID  string    `json:"uuid" yaml:"uuid"`
	Loc   EntityLoc `json:"loc" yaml:"loc"`
	Chunk ChunkRef  `json:"chunk" yaml:"chunk"`
	NBT   string    `json:"nbt" yaml:"nbt"`
}

func (Entities) Name() string { return "entities" }

func (e Entities) Mutates() bool { return e.Action == Remove }

func (e Entities) Meta() report.Meta {
	if e.Action == Remove {
		return report.Meta{
			Title: "Remove entities",
			Summary: func(w io.Writer, t *report.TotalReport) {
				fmt.Fprintf(w, "Total removed entities: %d\n", t.Removed)
			},
			Body: func(w io.Writer, wr *report.WorldReport) {
				fmt.Fprintf(w, "    Removed entities: %d\n", wr.Removed)
			},
		}
	}
	return report.Meta{
		Title: "Find entities",
		Summary: func(w io.Writer, t *report.TotalReport) {
			fmt.Fprintf(w, "Total found entities: %d\n", t.Matched)
		},
		Body: func(w io.Writer, wr *report.WorldReport) {
			fmt.Fprintf(w, "    Entities found: %d\n", wr.Matched)
			if len(wr.Results) == 0 {
				return
			}
			fmt.Fprint(w, "    Entities:\n")
			for i, r := range wr.Results {
				er, ok := r.(EntityResult)
				if !ok {
					continue
				}
				if i > 0 {
					fmt.Fprint(w, "        ------------------\n")
				}
				fmt.Fprintf(w, "        ID: %s\n        UUID: %s\n", er.ID, er.UUID)
				fmt.Fprintf(w, "        Dimension: %s\n", capitalize(er.Loc.Dimension))
				fmt.Fprintf(w, "        Location: %v %v %v\n", er.Loc.X, er.Loc.Y, er.Loc.Z)
				fmt.Fprintf(w, "        Chunk:\n            In region file: %s\n            In world: %s\n", er.Chunk.InRegionFile, er.Chunk.InWorld)
				if e.IncludeNBT {
					fmt.Fprintf(w, "        NBT: %s\n", er.NBT)
				}
			}
		},
	}
}

func (e Entities) validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("entities: unknown action %d", e.Action)
	}
	if e.Dimension != "" && !e.Dimension.Valid() {
		return fmt.Errorf("entities: unknown dimension %q", e.Dimension)
	}
	if e.Action == Remove {
		switch e.RemoveBy {
		case ByID:
			if ident.CanonicalID(e.ID) == "" {
				return errors.New("entities: removing by id needs an id")
			}
		case ByUUID:
			if e.UUID == uuid.Nil {
				return errors.New("entities: removing by uuid needs a uuid")
			}
		case ByAll:
		default:
			return fmt.Errorf("entities: unknown remove_by %q", e.RemoveBy)
		}
	}
	return nil
}

// selects reports whether an entity record is targeted. Ids are compared
// in canonical form and UUIDs as uuid.UUID whichever encoding the record uses.
func (e Entities) selects() mutate.RecordPredicate {
	want := ident.CanonicalID(e.ID)
	if e.Action == Find {
		return func(rec *dynbt.Value) bool {
			if want == "" {
				return true
			}
			id, _ := nbt.Str(rec, "id")
			return ident.CanonicalID(id) == want
		}
	}
	switch e.RemoveBy {
	case ByID:
		return func(rec *dynbt.Value) bool {
			id, _ := nbt.Str(rec, "id")
			return ident.CanonicalID(id) == want
		}
	case ByUUID:
		target := e.UUID
		return func(rec *dynbt.Value) bool {
			u, ok := chunk.EntityUUID(rec)
			return ok && u == target
		}
	case ByAll:
		return func(*dynbt.Value) bool { return true }
	}
	return func(*dynbt.Value) bool { return false }
}

// Predicate yields one hit per selected entity.
func (e Entities) Predicate() scan.Predicate {
	match := e.selects()
	return scan.PredicateFunc(func(ch *scan.Chunk) ([]scan.Hit, error) {
		list, ok := ch.View.Entities()
		if !ok {
			return nil, fmt.Errorf("entities: %w", scan.ErrMissingField)
		}
		var hits []scan.Hit
		for i := 0; i < list.Len(); i++ {
			rec := list.At(i)
			if !nbt.IsCompound(rec) || !match(rec) {
				continue
			}
			h := scan.Hit{Index: i}
			if e.Action == Find {
				r, err := e.describe(ch, rec)
				if err != nil {
					return nil, err
				}
				h.Fields = r
			}
			hits = append(hits, h)
		}
		return hits, nil
	})
}

func (e Entities) describe(ch *scan.Chunk, rec *dynbt.Value) (EntityResult, error) {
	r := EntityResult{
		Loc:   EntityLoc{Dimension: string(ch.Dimension)},
		Chunk: ChunkRef{InRegionFile: ch.Local, InWorld: ch.Absolute},
		NBT:   "{}",
	}
	r.ID, _ = nbt.Str(rec, "id")
	if u, ok := chunk.EntityUUID(rec); ok {
		r.UUID = u.String()
	}
	if p, ok := chunk.EntityPos(rec); ok {
		r.Loc.X, r.Loc.Y, r.Loc.Z = p[0], p[1], p[2]
	}
	if e.IncludeNBT {
		p, err := nbt.Plain(rec, e.NBTKeys...)
		if err != nil {
			return r, fmt.Errorf("entity nbt: %w", err)
		}
		b, err := json.Marshal(p)
		if err != nil {
			return r, fmt.Errorf("entity nbt: %w", err)
		}
		r.NBT = string(b)
	}
	return r, nil
}

// entityFolder picks the entities folder of each dimension, falling back to
// the region folder for worlds that keep entities inside terrain chunks.
func (e Entities) entityFolder(d world.Dimension, f world.Folders) string {
	if e.Dimension != "" && d != e.Dimension {
		return ""
	}
	return f.EntitySource()
}

func (e Entities) Run(ctx context.Context, env *Env, worlds []*world.World) (*report.Report, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	pred := e.Predicate()
	return env.eachWorld(ctx, e.Name(), worlds, e.entityFolder, "entity", e.Mutates(),
		func(ctx context.Context, w *world.World, cs []world.Container, p *report.Pass) (string, error) {
			if e.Action == Find {
				env.printf("\nSearching for entities in world %q...\n", w.Root)
				res, err := env.engine(1).Run(ctx, cs, pred, nil)
				if err != nil {
					return "", err
				}
				p.World.Counts = report.Counts{Matched: len(res.Matches), Total: res.Chunks, Scanned: res.Scanned}
				p.World.Results = results(res.Matches)
				p.World.Diagnostics = diagnostics(res.Diagnostics)
				return fmt.Sprintf("Found %d entities in world %q.", len(res.Matches), w.Root), nil
			}

			env.printf("\nRemoving entities in world %q...\n", w.Root)
			removed := 0
			var extra []scan.Diagnostic
			match := e.selects()
			after := func(f *region.File, ct world.Container, ms []scan.Match, pr scan.Progress) error {
				for _, cell := range byCell(ms) {
					n, err := env.mutator().DeleteSubRecords(f, cell, chunk.View.Entities, match, pr)
					if errors.Is(err, mutate.ErrUnreadable) {
						extra = append(extra, scan.Diagnostic{Dimension: ct.Dimension, Container: ct.Name, Local: cell, Absolute: absoluteOf(ct, cell, ms), Err: err})
						continue
					}
					if err != nil {
						return err
					}
					removed += n
				}
				return nil
			}
			res, err := env.engine(2).Run(ctx, cs, pred, after)
			if err != nil {
				return "", err
			}
			p.World.Counts = report.Counts{Matched: len(res.Matches), Removed: removed, Total: res.Chunks, Scanned: res.Scanned}
			p.World.Diagnostics = diagnostics(append(res.Diagnostics, extra...))
			return fmt.Sprintf("Removed %d entities in world %q.", removed, w.Root), nil
		})
}

// ParseRemoveBy accepts id, uuid or all in any case.
func ParseRemoveBy(s string) (RemoveBy, error) {
	r := RemoveBy(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("remove_by must be one of id, uuid, all; got %q", s)
	}
	return r, nil
}
