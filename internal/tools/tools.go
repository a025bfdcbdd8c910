// Package tools implements the three world tools on top of the scan engine:
// removing unused chunks, finding or removing command blocks, and finding or
// removing entities.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/dustin/go-humanize"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/mutate"
	"mcworldtools/internal/report"
	"mcworldtools/internal/scan"
	"mcworldtools/internal/world"
)

// ErrNoFolders means none of the selected worlds had a folder the tool could
// work on.
var ErrNoFolders = errors.New("no region or entity folder found")

// Action selects between the search and the removal variant of a tool.
type Action int

const (
	Find   Action = 1
	Remove Action = 2
)

func (a Action) Valid() bool { return a == Find || a == Remove }

// Tool is one selectable operation.
type Tool interface {
	Name() string
	Meta() report.Meta
	// Mutates reports whether Run may change world files.
	Mutates() bool
	Run(ctx context.Context, env *Env, worlds []*world.World) (*report.Report, error)
}

// Env carries the collaborators shared by all tools.
type Env struct {
	// Out receives user-facing status lines.
	Out      io.Writer
	Logger   *log.Logger
	Progress scan.Progress
	Mutator  *mutate.Mutator
}

func (env *Env) printf(format string, args ...any) {
	if env.Out != nil {
		fmt.Fprintf(env.Out, format, args...)
	}
}

func (env *Env) mutator() *mutate.Mutator {
	if env.Mutator == nil {
		return &mutate.Mutator{}
	}
	return env.Mutator
}

func (env *Env) engine(weight int) *scan.Engine {
	return &scan.Engine{Progress: env.Progress, Logger: env.Logger, Weight: weight}
}

// folderFunc picks the folder a tool scans for one dimension, "" to skip it.
type folderFunc func(world.Dimension, world.Folders) string

func regionFolder(_ world.Dimension, f world.Folders) string { return f.Region }

// containersOf enumerates every container the tool should visit in w. ok is
// false when no dimension had a usable folder.
func containersOf(w *world.World, pick folderFunc) (cs []world.Container, ok bool, err error) {
	for _, d := range w.Layout.Dimensions() {
		dir := pick(d, w.Layout[d])
		if dir == "" {
			continue
		}
		ok = true
		list, err := world.ListContainers(dir, d)
		if err != nil {
			return nil, true, err
		}
		cs = append(cs, list...)
	}
	return cs, ok, nil
}

// worldPass scans one world and fills its report entry. The returned line
// is printed once the pass is timed.
type worldPass func(ctx context.Context, w *world.World, cs []world.Container, p *report.Pass) (string, error)

func (env *Env) eachWorld(ctx context.Context, tool string, worlds []*world.World, pick folderFunc, kind string, mutating bool, run worldPass) (*report.Report, error) {
	agg := report.NewAggregator(tool, nil)
	found := 0
	for _, w := range worlds {
		cs, ok, err := containersOf(w, pick)
		if err != nil {
			return nil, err
		}
		if !ok {
			env.printf("\nNo %s folder was found in world %q\n", kind, w.Root)
			continue
		}
		found++
		before := world.TotalBytes(cs)
		if env.Logger != nil {
			env.Logger.Printf("world %q: %d %s files, %s", w.Root, len(cs), kind, humanize.Bytes(uint64(before)))
		}
		p := agg.Begin(w.Abs, w.LevelName)
		summary, err := run(ctx, w, cs, p)
		if err != nil {
			return nil, fmt.Errorf("world %q: %w", w.Root, err)
		}
		if mutating {
			p.Freed(before, world.TotalBytes(cs))
		}
		wr := p.Finish()
		if wr.FreedSpace != nil {
			env.printf("%s (Elapsed time: %s; Freed space: %s)\n", summary, wr.ElapsedTime.HumanReadable, wr.FreedSpace.HumanReadable)
		} else {
			env.printf("%s (Elapsed time: %s)\n", summary, wr.ElapsedTime.HumanReadable)
		}
	}
	if found == 0 {
		return nil, ErrNoFolders
	}
	r := agg.Finish()
	if len(worlds) > 1 {
		env.printf("\nTotal elapsed time: %s\n", r.Total.ElapsedTime.HumanReadable)
		if r.Total.FreedSpace != nil {
			env.printf("Total freed space: %s\n", r.Total.FreedSpace.HumanReadable)
		}
	}
	return r, nil
}

func diagnostics(ds []scan.Diagnostic) []string {
	if len(ds) == 0 {
		return nil
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// ChunkRef locates a match by both coordinate forms.
type ChunkRef struct {
	InRegionFile ident.ChunkPos `json:"in_region_file" yaml:"in_region_file"`
	InWorld      ident.ChunkPos `json:"in_world" yaml:"in_world"`
}

// byCell groups sub-record matches by chunk, keeping first-seen order.
func byCell(ms []scan.Match) []ident.ChunkPos {
	seen := map[ident.ChunkPos]bool{}
	var out []ident.ChunkPos
	for _, m := range ms {
		if !seen[m.Local] {
			seen[m.Local] = true
			out = append(out, m.Local)
		}
	}
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
