package tools

import (
	"context"
	"fmt"
	"io"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/region"
	"mcworldtools/internal/report"
	"mcworldtools/internal/scan"
	"mcworldtools/internal/world"
)

// TicksPerSecond converts user-facing seconds to stored ticks.
const TicksPerSecond = 20

// UnusedChunks deletes every chunk whose InhabitedTime is at most the
// threshold. A region file losing all its chunks is deleted.
type UnusedChunks struct {
	InhabitedSeconds int64
}

func (UnusedChunks) Name() string  { return "unused-chunks" }
func (UnusedChunks) Mutates() bool { return true }

func (u UnusedChunks) ThresholdTicks() int64 { return u.InhabitedSeconds * TicksPerSecond }

func (UnusedChunks) Meta() report.Meta {
	return report.Meta{
		Title: "Remove unused chunks",
		Body: func(w io.Writer, wr *report.WorldReport) {
			fmt.Fprintf(w, "    Chunks\n        Removed: %d\n        Total: %d\n", wr.Removed, wr.Total)
		},
	}
}

// Predicate matches whole chunks at or below the threshold.
func (u UnusedChunks) Predicate() scan.Predicate {
	limit := u.ThresholdTicks()
	return scan.PredicateFunc(func(c *scan.Chunk) ([]scan.Hit, error) {
		n, ok := c.View.InhabitedTime()
		if !ok {
			return nil, fmt.Errorf("InhabitedTime: %w", scan.ErrMissingField)
		}
		if n > limit {
			return nil, nil
		}
		return []scan.Hit{{Index: -1}}, nil
	})
}

func (u UnusedChunks) Run(ctx context.Context, env *Env, worlds []*world.World) (*report.Report, error) {
	pred := u.Predicate()
	return env.eachWorld(ctx, u.Name(), worlds, regionFolder, "region", true,
		func(ctx context.Context, w *world.World, cs []world.Container, p *report.Pass) (string, error) {
			env.printf("\nRemoving unused chunks of world %q...\n", w.Root)
			removed := 0
			after := func(f *region.File, c world.Container, ms []scan.Match, pr scan.Progress) error {
				if len(ms) == 0 {
					return nil
				}
				cells := make([]ident.ChunkPos, len(ms))
				for i, m := range ms {
					cells[i] = m.Local
				}
				d, err := env.mutator().DeleteChunks(f, cells, pr)
				removed += d.Removed
				return err
			}
			res, err := env.engine(2).Run(ctx, cs, pred, after)
			if err != nil {
				return "", err
			}
			p.World.Counts = report.Counts{Matched: len(res.Matches), Removed: removed, Total: res.Chunks, Scanned: res.Scanned}
			p.World.Diagnostics = diagnostics(res.Diagnostics)
			return fmt.Sprintf("Removed %d/%d (%.2f%%) chunks of world %q.", removed, res.Chunks, percent(removed, res.Chunks), w.Root), nil
		})
}
