package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"mcworldtools/internal/input"
	"mcworldtools/internal/mutate"
	"mcworldtools/internal/persistence/indexdb"
	journal "mcworldtools/internal/persistence/log"
	"mcworldtools/internal/progress"
	"mcworldtools/internal/prompt"
	"mcworldtools/internal/report"
	"mcworldtools/internal/tools"
	"mcworldtools/internal/world"
)

const version = "1.3.0"

// Exit codes.
const (
	exitOK          = 0
	exitBadArgument = 1
	exitNotWorld    = 2
	exitBadInput    = 3
	exitNeedOutput  = 4
	exitNoFolders   = 5
	exitRuntime     = 6
	exitInterrupted = 130
)

type toolEntry struct {
	name  string
	label string
	plan  func(p *prompt.Prompter, in *input.File, hasOutput bool) (prompt.Plan, error)
}

var toolList = []toolEntry{
	{"unused-chunks", "Remove unused chunks", func(p *prompt.Prompter, in *input.File, _ bool) (prompt.Plan, error) {
		return p.UnusedChunks(in)
	}},
	{"command-blocks", "Remove/Find command blocks", (*prompt.Prompter).CommandBlocks},
	{"entities", "Remove/Find entities", (*prompt.Prompter).Entities},
}

// worldFlags collects repeated -world values.
type worldFlags []string

func (w *worldFlags) String() string { return strings.Join(*w, ",") }
func (w *worldFlags) Set(v string) error {
	*w = append(*w, v)
	return nil
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// notify scopes the tool run; SIGINT/SIGTERM cancel it.
	notify func(context.Context) (context.Context, context.CancelFunc)
}

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		notify: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		},
	}
	os.Exit(a.run(os.Args[1:]))
}

func (a *app) fail(code int, format string, args ...any) int {
	fmt.Fprintf(a.stderr, format+"\n", args...)
	return code
}

func (a *app) run(args []string) int {
	fs := flag.NewFlagSet("mcworldtools", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var worldDirs worldFlags
	fs.Var(&worldDirs, "world", "world folder (repeatable; default: current directory)")
	toolNum := fs.Int("tool", 0, "tool number (1-3) chosen beforehand")
	outPath := fs.String("o", "", "file to write the output statistics to (required for search actions)")
	formatName := fs.String("f", "plain", "output file format: plain, json or yaml")
	inPath := fs.String("i", "", "JSON or YAML file answering the interactive questions")
	confirm := fs.Bool("confirm", false, "automatically confirm any confirmation requests")
	journalDir := fs.String("journal", "", "directory for the zstd JSONL mutation journal (optional)")
	indexPath := fs.String("index", "", "SQLite file recording run results (optional)")
	showVersion := fs.Bool("v", false, "show the version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitBadArgument
	}

	fmt.Fprintln(a.stdout, "--- MCWorldTools ---")
	if *showVersion {
		fmt.Fprintf(a.stdout, "Installed version: %s\n", version)
		return exitOK
	}

	logger := log.New(a.stderr, "[mcworldtools] ", log.LstdFlags)

	worlds, code := a.openWorlds(worldDirs)
	if code != exitOK {
		return code
	}

	format, err := report.ParseFormat(*formatName)
	if err != nil {
		return a.fail(exitBadArgument, "%v", err)
	}
	if *outPath != "" {
		if st, err := os.Stat(*outPath); err == nil && st.IsDir() {
			return a.fail(exitBadArgument, "The output file %q is a folder.", *outPath)
		}
	}

	var in *input.File
	if *inPath != "" {
		in, err = input.Load(*inPath)
		var ve *input.ValidationError
		switch {
		case errors.As(err, &ve):
			for _, f := range ve.Fields {
				fmt.Fprintf(a.stderr, "%s\n", f)
			}
			return exitBadInput
		case err != nil:
			return a.fail(exitBadArgument, "%v", err)
		}
		if in.Confirm.Has() && in.Confirm.Value {
			*confirm = true
		}
	}

	p := prompt.New(a.stdin, a.stdout)
	entry, code := a.selectTool(p, fs.Args(), *toolNum)
	if entry == nil {
		return code
	}
	fmt.Fprintf(a.stdout, "Using tool %q\n", entry.label)

	plan, err := entry.plan(p, in, *outPath != "")
	switch {
	case errors.Is(err, prompt.ErrNeedOutput):
		fmt.Fprintf(a.stdout, "\n%s.\n", capitalize(err.Error()))
		return exitNeedOutput
	case errors.Is(err, prompt.ErrClosed):
		return exitOK
	case errors.Is(err, prompt.ErrBadInput):
		return a.fail(exitBadInput, "%v", err)
	case err != nil:
		return a.fail(exitBadArgument, "%v", err)
	}

	if plan.Tool.Mutates() && !*confirm {
		ok, err := p.Confirm(plan.Warning)
		if err != nil || !ok {
			fmt.Fprintln(a.stdout, "Exiting")
			return exitOK
		}
	}

	mut := &mutate.Mutator{}
	if *journalDir != "" {
		j := journal.NewMutationJournal(*journalDir)
		defer func() {
			if err := j.Close(); err != nil {
				logger.Printf("close journal: %v", err)
			}
		}()
		mut.Journal = j
	}

	ctx, stop := a.notify(context.Background())
	defer stop()
	env := &tools.Env{
		Out:      a.stdout,
		Logger:   logger,
		Progress: progress.New(a.stderr, logger),
		Mutator:  mut,
	}
	r, err := plan.Tool.Run(ctx, env, worlds)
	switch {
	case ctx.Err() != nil:
		fmt.Fprintln(a.stdout, "\n\nAborted.")
		return exitInterrupted
	case errors.Is(err, tools.ErrNoFolders):
		return a.fail(exitNoFolders, "%v", err)
	case err != nil:
		return a.fail(exitRuntime, "%v", err)
	}

	if *outPath != "" {
		if err := report.WriteFile(*outPath, format, r, plan.Tool.Meta()); err != nil {
			return a.fail(exitRuntime, "write output: %v", err)
		}
		fmt.Fprintf(a.stdout, "\nThe output has been saved to %q.\n", *outPath)
	}
	if *indexPath != "" {
		idx, err := indexdb.OpenSQLite(*indexPath)
		if err != nil {
			return a.fail(exitRuntime, "open index: %v", err)
		}
		defer idx.Close()
		if _, err := idx.RecordReport(context.Background(), r); err != nil {
			return a.fail(exitRuntime, "record run: %v", err)
		}
	}
	return exitOK
}

// openWorlds validates every -world argument, defaulting to the current
// directory.
func (a *app) openWorlds(dirs []string) ([]*world.World, int) {
	explicit := len(dirs) > 0
	if !explicit {
		dirs = []string{"."}
	}
	seen := map[string]bool{}
	var worlds []*world.World
	for _, d := range dirs {
		if st, err := os.Stat(d); err != nil || !st.IsDir() {
			return nil, a.fail(exitBadArgument, "The folder %q does not exist.", d)
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, a.fail(exitBadArgument, "%v", err)
		}
		if seen[abs] {
			return nil, a.fail(exitBadArgument, "The folder %q was stated multiple times.", d)
		}
		seen[abs] = true

		w, err := world.Open(d)
		if err != nil {
			if !explicit {
				return nil, a.fail(exitNotWorld, "Please run in a world folder or use the option \"-world\".")
			}
			return nil, a.fail(exitNotWorld, "%q is not a valid world folder.", d)
		}
		ver := ""
		if w.Version != "" {
			ver = fmt.Sprintf("Version: %s, ", w.Version)
		}
		fmt.Fprintf(a.stdout, "Detected world: %q (%sWorld folder: %q)\n", w.LevelName, ver, d)
		worlds = append(worlds, w)
	}
	fmt.Fprintln(a.stdout)
	return worlds, exitOK
}

// selectTool resolves the tool from a positional name, -tool, or a prompt.
// A nil entry comes with the exit code to return.
func (a *app) selectTool(p *prompt.Prompter, rest []string, num int) (*toolEntry, int) {
	if len(rest) > 1 {
		return nil, a.fail(exitBadArgument, "unexpected arguments: %s", strings.Join(rest[1:], " "))
	}
	if len(rest) == 1 {
		for i := range toolList {
			if toolList[i].name == rest[0] {
				return &toolList[i], exitOK
			}
		}
		if n, err := strconv.Atoi(rest[0]); err == nil {
			num = n
		} else {
			return nil, a.fail(exitBadArgument, "unknown tool %q", rest[0])
		}
	}
	if num != 0 {
		if num < 1 || num > len(toolList) {
			return nil, a.fail(exitBadArgument, "-tool must be between 1 and %d", len(toolList))
		}
		return &toolList[num-1], exitOK
	}

	labels := make([]string, len(toolList))
	for i, t := range toolList {
		labels[i] = t.label
	}
	n, err := p.Choose("Select which tool you want to use.", "Select a tool", labels, true)
	if err != nil || n == 0 {
		fmt.Fprintln(a.stdout, "Exiting")
		return nil, exitOK
	}
	return &toolList[n-1], exitOK
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
