package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"mcworldtools/internal/report"
)

func sampleReport() *report.Report {
	a := report.NewAggregator("entities", nil)
	p := a.Begin("/srv/a", "A")
	p.World.Counts = report.Counts{Matched: 2, Removed: 2, Total: 5, Scanned: 5}
	p.World.Results = []any{map[string]any{"id": "minecraft:cow"}, map[string]any{"id": "minecraft:pig"}}
	p.World.Diagnostics = []string{"bad chunk"}
	p.Freed(8192, 4096)
	p.Finish()
	p = a.Begin("/srv/b", "B")
	p.Freed(0, 0)
	p.Finish()
	return a.Finish()
}

func TestSQLiteIndex_RecordReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }

	first, err := idx.RecordReport(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	second, err := idx.RecordReport(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	if second <= first {
		t.Fatalf("run ids %d then %d", first, second)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		tool, at string
		worlds   int
		removed  int
		freedB   sql.NullInt64
	)
	row := db.QueryRow(`SELECT tool,recorded_at,worlds,removed,freed_bytes FROM runs WHERE id=?`, first)
	if err := row.Scan(&tool, &at, &worlds, &removed, &freedB); err != nil {
		t.Fatalf("Scan run: %v", err)
	}
	if tool != "entities" || at != "2024-03-04T05:06:07Z" || worlds != 2 || removed != 2 || !freedB.Valid || freedB.Int64 != 4096 {
		t.Fatalf("run row tool=%q at=%q worlds=%d removed=%d freed=%v", tool, at, worlds, removed, freedB)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM matches WHERE run_id=? AND path='/srv/a'`, first).Scan(&n); err != nil || n != 2 {
		t.Fatalf("matches=%d err=%v", n, err)
	}
	var raw string
	if err := db.QueryRow(`SELECT raw_json FROM matches WHERE run_id=? AND seq=1`, first).Scan(&raw); err != nil || raw != `{"id":"minecraft:pig"}` {
		t.Fatalf("match json=%q err=%v", raw, err)
	}
	var msg string
	if err := db.QueryRow(`SELECT message FROM diagnostics WHERE run_id=?`, first).Scan(&msg); err != nil || msg != "bad chunk" {
		t.Fatalf("diagnostic=%q err=%v", msg, err)
	}
	var level string
	if err := db.QueryRow(`SELECT level_name FROM worlds WHERE run_id=? AND path='/srv/b'`, second).Scan(&level); err != nil || level != "B" {
		t.Fatalf("world row=%q err=%v", level, err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("empty path accepted")
	}
}
