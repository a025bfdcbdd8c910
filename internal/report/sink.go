package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	Plain Format = "plain"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Plain, JSON, YAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want plain, json or yaml)", s)
}

const banner = "--- MCWorldTools ---"

// Meta is what a tool contributes to the plain rendering: a title, lines for
// the total block and the body of each world block. Either func may be nil.
type Meta struct {
	Title   string
	Summary func(w io.Writer, t *TotalReport)
	Body    func(w io.Writer, wr *WorldReport)
}

// Write renders r in the given format.
func Write(w io.Writer, f Format, r *Report, m Meta) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "   ")
		return enc.Encode(r)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(3)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case Plain:
		return writePlain(w, r, m)
	}
	return fmt.Errorf("unknown output format %q", f)
}

func writePlain(w io.Writer, r *Report, m Meta) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n··· %s ···\n\n", banner, m.Title)
	if m.Summary != nil {
		m.Summary(bw, &r.Total)
	}
	fmt.Fprintf(bw, "Total elapsed time: %s\n", r.Total.ElapsedTime.HumanReadable)
	if r.Total.FreedSpace != nil {
		fmt.Fprintf(bw, "Total freed space: %s\n", r.Total.FreedSpace.HumanReadable)
	}
	fmt.Fprint(bw, "\n[ Worlds ]\n")
	for _, k := range r.Keys() {
		wr := r.Worlds[k]
		fmt.Fprintf(bw, "%s\n", k)
		if m.Body != nil {
			m.Body(bw, wr)
		}
		fmt.Fprintf(bw, "    Elapsed time: %s\n", wr.ElapsedTime.HumanReadable)
		if wr.FreedSpace != nil {
			fmt.Fprintf(bw, "    Freed space: %s\n", wr.FreedSpace.HumanReadable)
		}
		if len(wr.Diagnostics) > 0 {
			fmt.Fprintf(bw, "    Unreadable chunks: %d\n", len(wr.Diagnostics))
			for _, d := range wr.Diagnostics {
				fmt.Fprintf(bw, "        %s\n", d)
			}
		}
	}
	return bw.Flush()
}

// WriteFile renders r into path, replacing the file.
func WriteFile(path string, f Format, r *Report, m Meta) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(out, f, r, m); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}
