package world

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mcworldtools/internal/region"
)

// Container is one region file of a dimension folder.
type Container struct {
	Path      string
	Name      string
	Dimension Dimension
	RX, RZ    int
	HasCoords bool
	Size      int64
}

// ListContainers returns the .mca files directly under folder, ordered by
// region coordinates; files whose names do not parse sort last by name.
func ListContainers(folder string, dim Dimension) ([]Container, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var out []Container
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), region.Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		c := Container{
			Path:      filepath.Join(folder, e.Name()),
			Name:      e.Name(),
			Dimension: dim,
			Size:      info.Size(),
		}
		c.RX, c.RZ, c.HasCoords = region.ParseName(e.Name())
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasCoords != b.HasCoords {
			return a.HasCoords
		}
		if a.HasCoords {
			if a.RX != b.RX {
				return a.RX < b.RX
			}
			if a.RZ != b.RZ {
				return a.RZ < b.RZ
			}
		}
		return a.Name < b.Name
	})
	return out, nil
}

// TotalBytes sums the current on-disk sizes. Files that no longer exist
// count as zero.
func TotalBytes(cs []Container) int64 {
	var n int64
	for _, c := range cs {
		if st, err := os.Stat(c.Path); err == nil {
			n += st.Size()
		}
	}
	return n
}
