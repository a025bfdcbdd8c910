// Package report aggregates per-world pass statistics into a run total and
// renders the result as plain text, JSON or YAML.
package report

import (
	"fmt"
	"sort"
	"time"
)

// Elapsed is a duration in milliseconds with its "Xm Ys" rendering.
type Elapsed struct {
	Raw           int64  `json:"raw" yaml:"raw"`
	HumanReadable string `json:"human_readable" yaml:"human_readable"`
}

// Space is a byte count with its kB/MB/GB rendering.
type Space struct {
	Raw           int64  `json:"raw" yaml:"raw"`
	HumanReadable string `json:"human_readable" yaml:"human_readable"`
}

func NewElapsed(d time.Duration) Elapsed {
	ms := d.Milliseconds()
	return Elapsed{Raw: ms, HumanReadable: FormatElapsed(ms)}
}

func NewSpace(n int64) *Space {
	return &Space{Raw: n, HumanReadable: FormatBytes(n)}
}

// FormatElapsed renders milliseconds as whole minutes and seconds. Minutes do
// not roll over into hours.
func FormatElapsed(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%dm %ds", s/60, s%60)
}

// FormatBytes divides by 1000 into kB, then on to MB and GB while the value
// stays at or above 1000, with two decimals.
func FormatBytes(n int64) string {
	v := float64(n) / 1000
	unit := "kB"
	for _, next := range []string{"MB", "GB"} {
		if v < 1000 && v > -1000 {
			break
		}
		v /= 1000
		unit = next
	}
	return fmt.Sprintf("%.2f%s", v, unit)
}

// Counts are the numeric results of a pass. Matched is what the predicate
// selected, Removed what was deleted, Total the populated chunks (or
// sub-records) considered and Scanned the chunks decoded.
type Counts struct {
	Matched int `json:"matched" yaml:"matched"`
	Removed int `json:"removed" yaml:"removed"`
	Total   int `json:"total" yaml:"total"`
	Scanned int `json:"scanned" yaml:"scanned"`
}

func (c *Counts) add(o Counts) {
	c.Matched += o.Matched
	c.Removed += o.Removed
	c.Total += o.Total
	c.Scanned += o.Scanned
}

type WorldReport struct {
	LevelName   string   `json:"level_name,omitempty" yaml:"level_name,omitempty"`
	Counts      `yaml:",inline"`
	ElapsedTime Elapsed  `json:"elapsed_time" yaml:"elapsed_time"`
	FreedSpace  *Space   `json:"freed_space,omitempty" yaml:"freed_space,omitempty"`
	Results     []any    `json:"results,omitempty" yaml:"results,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

type TotalReport struct {
	Counts      `yaml:",inline"`
	Worlds      int     `json:"worlds" yaml:"worlds"`
	ElapsedTime Elapsed `json:"elapsed_time" yaml:"elapsed_time"`
	FreedSpace  *Space  `json:"freed_space,omitempty" yaml:"freed_space,omitempty"`
}

// Report is keyed by the resolved absolute world path.
type Report struct {
	Tool   string                  `json:"tool" yaml:"tool"`
	Worlds map[string]*WorldReport `json:"worlds" yaml:"worlds"`
	Total  TotalReport             `json:"total" yaml:"total"`

	order []string
}

// Keys returns world keys in the order the worlds were processed.
func (r *Report) Keys() []string {
	if len(r.order) == len(r.Worlds) {
		return append([]string(nil), r.order...)
	}
	keys := make([]string, 0, len(r.Worlds))
	for k := range r.Worlds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregator times world passes and folds them into a Report.
type Aggregator struct {
	now    func() time.Time
	start  time.Time
	report *Report
}

// NewAggregator starts the run clock. now defaults to time.Now.
func NewAggregator(tool string, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		now:    now,
		start:  now(),
		report: &Report{Tool: tool, Worlds: map[string]*WorldReport{}},
	}
}

// Pass is one world's measurement in progress.
type Pass struct {
	a     *Aggregator
	key   string
	start time.Time
	World *WorldReport
}

func (a *Aggregator) Begin(key, levelName string) *Pass {
	return &Pass{a: a, key: key, start: a.now(), World: &WorldReport{LevelName: levelName}}
}

// Freed records the byte sizes before and after the pass.
func (p *Pass) Freed(before, after int64) {
	p.World.FreedSpace = NewSpace(before - after)
}

// Finish stops the world clock and stores the report. A world key seen twice
// replaces the earlier entry.
func (p *Pass) Finish() *WorldReport {
	p.World.ElapsedTime = NewElapsed(p.a.now().Sub(p.start))
	r := p.a.report
	if _, dup := r.Worlds[p.key]; !dup {
		r.order = append(r.order, p.key)
	}
	r.Worlds[p.key] = p.World
	return p.World
}

// Finish sums every world into the total and re-measures the run clock.
func (a *Aggregator) Finish() *Report {
	r := a.report
	t := TotalReport{Worlds: len(r.Worlds)}
	var freed int64
	anyFreed := false
	for _, k := range r.order {
		w := r.Worlds[k]
		t.Counts.add(w.Counts)
		if w.FreedSpace != nil {
			freed += w.FreedSpace.Raw
			anyFreed = true
		}
	}
	if anyFreed {
		t.FreedSpace = NewSpace(freed)
	}
	t.ElapsedTime = NewElapsed(a.now().Sub(a.start))
	r.Total = t
	return r
}
