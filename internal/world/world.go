// Package world validates world save directories and locates the region and
// entity container folders of each dimension.
package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"mcworldtools/internal/nbt"
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrNotWorld     = errors.New("not a world")
)

type Dimension string

const (
	Overworld Dimension = "overworld"
	Nether    Dimension = "nether"
	End       Dimension = "end"
)

// All lists the dimensions in report order.
var All = []Dimension{Overworld, Nether, End}

func (d Dimension) Valid() bool {
	switch d {
	case Overworld, Nether, End:
		return true
	}
	return false
}

func (d Dimension) dir() string {
	switch d {
	case Nether:
		return "DIM-1"
	case End:
		return "DIM1"
	}
	return ""
}

// Folders holds the container folders found for one dimension. Either path
// may be empty.
type Folders struct {
	Region   string
	Entities string
}

// EntitySource is where entity records live: the entities folder (1.17+),
// otherwise inside the region chunks.
func (f Folders) EntitySource() string {
	if f.Entities != "" {
		return f.Entities
	}
	return f.Region
}

// Layout maps each present dimension to its folders.
type Layout map[Dimension]Folders

// Dimensions returns the present dimensions in report order.
func (l Layout) Dimensions() []Dimension {
	var out []Dimension
	for _, d := range All {
		if _, ok := l[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Resolve checks the known dimension folders under root. Nothing is created;
// an empty layout means no folder was found.
func Resolve(root string) Layout {
	l := Layout{}
	for _, d := range All {
		base := filepath.Join(root, d.dir())
		var f Folders
		if isDir(filepath.Join(base, "region")) {
			f.Region = filepath.Join(base, "region")
		}
		if isDir(filepath.Join(base, "entities")) {
			f.Entities = filepath.Join(base, "entities")
		}
		if f.Region != "" || f.Entities != "" {
			l[d] = f
		}
	}
	return l
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

// World is a validated save directory.
type World struct {
	Root      string
	Abs       string
	LevelName string
	Version   string
	Layout    Layout
}

// Open validates root as a world: it must be a directory holding a gzip NBT
// level.dat with Data.LevelName.
func Open(root string) (*World, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", root, err)
	}
	if !isDir(abs) {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}
	name, version, err := readLevel(filepath.Join(abs, "level.dat"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", root, ErrNotWorld, err)
	}
	return &World{
		Root:      root,
		Abs:       abs,
		LevelName: name,
		Version:   version,
		Layout:    Resolve(abs),
	}, nil
}

func readLevel(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", "", fmt.Errorf("level.dat: %w", err)
	}
	defer zr.Close()
	root, err := nbt.Decode(zr)
	if err != nil {
		return "", "", fmt.Errorf("level.dat: %w", err)
	}
	data, ok := nbt.Child(root, "Data")
	if !ok {
		return "", "", errors.New("level.dat: missing Data")
	}
	name, ok = nbt.Str(data, "LevelName")
	if !ok {
		return "", "", errors.New("level.dat: missing Data.LevelName")
	}
	if v, ok := nbt.Child(data, "Version"); ok {
		version, _ = nbt.Str(v, "Name")
	}
	return name, version, nil
}
