package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tnze/go-mc/nbt/dynbt"

	"mcworldtools/internal/chunk"
	"mcworldtools/internal/ident"
	"mcworldtools/internal/mutate"
	"mcworldtools/internal/nbt"
	"mcworldtools/internal/region"
	"mcworldtools/internal/report"
	"mcworldtools/internal/scan"
	"mcworldtools/internal/world"
)

// Command block kinds accepted in the "types" parameter.
const (
	KindNormal    = "normal"
	KindRepeating = "repeating"
	KindChain     = "chain"
)

var commandBlockIDs = map[string][]string{
	// "Control" is the block entity id used before 1.11.
	KindNormal:    {"minecraft:command_block", "Control"},
	KindRepeating: {"minecraft:repeating_command_block"},
	KindChain:     {"minecraft:chain_command_block"},
}

// Kinds lists the valid command block kinds.
func Kinds() []string { return []string{KindNormal, KindRepeating, KindChain} }

// CommandBlocks finds or removes command block entities.
type CommandBlocks struct {
	Action Action
	// OnlyExecuting keeps blocks that are powered or set to always active.
	// Find only.
	OnlyExecuting bool
	// Types restricts the kinds; empty means normal command blocks only.
	Types []string
	// Locations restricts removal to these block positions; empty means all.
	Locations []ident.BlockPos
}

// CommandBlockResult is one found command block.
type CommandBlockResult struct {
	ID         string         `json:"id" yaml:"id"`
	CustomName string         `json:"custom_name" yaml:"custom_name"`
	Loc        ident.BlockPos `json:"loc" yaml:"loc"`
	Dimension  string         `json:"dimension" yaml:"dimension"`
	Chunk      ChunkRef       `json:"chunk" yaml:"chunk"`
	Powered    *bool          `json:"powered" yaml:"powered"`
	Auto       *bool          `json:"auto" yaml:"auto"`
	Command    string         `json:"command" yaml:"command"`
}

func (CommandBlocks) Name() string { return "command-blocks" }

func (c CommandBlocks) Mutates() bool { return c.Action == Remove }

func (c CommandBlocks) Meta() report.Meta {
	if c.Action == Remove {
		return report.Meta{
			Title: "Remove command blocks",
			Summary: func(w io.Writer, t *report.TotalReport) {
				fmt.Fprintf(w, "Total removed command blocks: %d\n", t.Removed)
			},
			Body: func(w io.Writer, wr *report.WorldReport) {
				fmt.Fprintf(w, "    Removed command blocks: %d\n", wr.Removed)
			},
		}
	}
	return report.Meta{
		Title: "Find command blocks",
		Summary: func(w io.Writer, t *report.TotalReport) {
			fmt.Fprintf(w, "Total found command blocks: %d\n", t.Matched)
		},
		Body: func(w io.Writer, wr *report.WorldReport) {
			fmt.Fprintf(w, "    Command blocks found: %d\n", wr.Matched)
			if len(wr.Results) == 0 {
				return
			}
			fmt.Fprint(w, "    Command blocks:\n")
			for i, r := range wr.Results {
				cb, ok := r.(CommandBlockResult)
				if !ok {
					continue
				}
				if i > 0 {
					fmt.Fprint(w, "        ------------------\n")
				}
				fmt.Fprintf(w, "        Custom Name: %s\n", cb.CustomName)
				fmt.Fprintf(w, "        Location: %s\n", cb.Loc)
				fmt.Fprintf(w, "        Dimension: %s\n", capitalize(cb.Dimension))
				fmt.Fprintf(w, "        Chunk:\n            In region file: %s\n            In world: %s\n", cb.Chunk.InRegionFile, cb.Chunk.InWorld)
				fmt.Fprintf(w, "        Command: %s\n", cb.Command)
				fmt.Fprintf(w, "        Powered: %s\n        Auto: %s\n", yesNo(cb.Powered), yesNo(cb.Auto))
			}
		},
	}
}

// ids returns the canonical block entity ids of the selected kinds.
func (c CommandBlocks) ids() map[string]bool {
	kinds := c.Types
	if len(kinds) == 0 {
		kinds = []string{KindNormal}
	}
	out := map[string]bool{}
	for _, k := range kinds {
		for _, id := range commandBlockIDs[strings.ToLower(k)] {
			out[ident.CanonicalID(id)] = true
		}
	}
	return out
}

func blockPos(e *dynbt.Value) (ident.BlockPos, bool) {
	x, okX := nbt.Int(e, "x")
	y, okY := nbt.Int(e, "y")
	z, okZ := nbt.Int(e, "z")
	return ident.BlockPos{X: int(x), Y: int(y), Z: int(z)}, okX && okY && okZ
}

// selects reports whether a block entity is a command block this run targets.
func (c CommandBlocks) selects(ids map[string]bool, at map[ident.BlockPos]bool) mutate.RecordPredicate {
	return func(e *dynbt.Value) bool {
		id, _ := nbt.Str(e, "id")
		if !ids[ident.CanonicalID(id)] {
			return false
		}
		if c.Action == Find && c.OnlyExecuting {
			powered, _ := chunk.Flag(e, "powered")
			auto, _ := chunk.Flag(e, "auto")
			if !powered && !auto {
				return false
			}
		}
		if c.Action == Remove && len(at) > 0 {
			pos, ok := blockPos(e)
			if !ok || !at[pos] {
				return false
			}
		}
		return true
	}
}

// Predicate yields one hit per selected command block.
func (c CommandBlocks) Predicate() scan.Predicate {
	match := c.selects(c.ids(), c.locationSet())
	return scan.PredicateFunc(func(ch *scan.Chunk) ([]scan.Hit, error) {
		list, ok := ch.View.BlockEntities()
		if !ok {
			return nil, fmt.Errorf("block entities: %w", scan.ErrMissingField)
		}
		var hits []scan.Hit
		for i := 0; i < list.Len(); i++ {
			e := list.At(i)
			if !nbt.IsCompound(e) || !match(e) {
				continue
			}
			hits = append(hits, scan.Hit{Index: i, Fields: describeCommandBlock(ch, e)})
		}
		return hits, nil
	})
}

func describeCommandBlock(ch *scan.Chunk, e *dynbt.Value) CommandBlockResult {
	r := CommandBlockResult{
		Dimension: string(ch.Dimension),
		Chunk:     ChunkRef{InRegionFile: ch.Local, InWorld: ch.Absolute},
	}
	r.ID, _ = nbt.Str(e, "id")
	r.CustomName, _ = nbt.Str(e, "CustomName")
	r.Command, _ = nbt.Str(e, "Command")
	r.Loc, _ = blockPos(e)
	if v, ok := chunk.Flag(e, "powered"); ok {
		r.Powered = &v
	}
	if v, ok := chunk.Flag(e, "auto"); ok {
		r.Auto = &v
	}
	return r
}

func (c CommandBlocks) Run(ctx context.Context, env *Env, worlds []*world.World) (*report.Report, error) {
	if !c.Action.Valid() {
		return nil, fmt.Errorf("command blocks: unknown action %d", c.Action)
	}
	for _, k := range c.Types {
		if _, ok := commandBlockIDs[strings.ToLower(k)]; !ok {
			return nil, fmt.Errorf("command blocks: unknown type %q", k)
		}
	}
	pred := c.Predicate()
	remove := c.selects(c.ids(), c.locationSet())
	return env.eachWorld(ctx, c.Name(), worlds, regionFolder, "region", c.Mutates(),
		func(ctx context.Context, w *world.World, cs []world.Container, p *report.Pass) (string, error) {
			if c.Action == Find {
				env.printf("\nSearching for command blocks in world %q...\n", w.Root)
				res, err := env.engine(1).Run(ctx, cs, pred, nil)
				if err != nil {
					return "", err
				}
				p.World.Counts = report.Counts{Matched: len(res.Matches), Total: res.Chunks, Scanned: res.Scanned}
				p.World.Results = results(res.Matches)
				p.World.Diagnostics = diagnostics(res.Diagnostics)
				return fmt.Sprintf("Found %d command blocks in world %q.", len(res.Matches), w.Root), nil
			}

			env.printf("\nRemoving command blocks in world %q...\n", w.Root)
			removed := 0
			var extra []scan.Diagnostic
			after := func(f *region.File, ct world.Container, ms []scan.Match, pr scan.Progress) error {
				for _, cell := range byCell(ms) {
					n, err := env.mutator().DeleteSubRecords(f, cell, chunk.View.BlockEntities, remove, pr)
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
			return fmt.Sprintf("Removed %d command blocks in world %q.", removed, w.Root), nil
		})
}

func (c CommandBlocks) locationSet() map[ident.BlockPos]bool {
	if len(c.Locations) == 0 {
		return nil
	}
	at := make(map[ident.BlockPos]bool, len(c.Locations))
	for _, l := range c.Locations {
		at[l] = true
	}
	return at
}

func results(ms []scan.Match) []any {
	out := make([]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Fields)
	}
	return out
}

func absoluteOf(c world.Container, cell ident.ChunkPos, ms []scan.Match) ident.ChunkPos {
	for _, m := range ms {
		if m.Local == cell {
			return m.Absolute
		}
	}
	if c.HasCoords {
		return ident.AbsoluteChunk(c.RX, c.RZ, cell)
	}
	return cell
}

func yesNo(v *bool) string {
	switch {
	case v == nil:
		return "Unknown"
	case *v:
		return "Yes"
	}
	return "No"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
