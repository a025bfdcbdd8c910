// Package nbt decodes chunk and level.dat documents into go-mc dynamic values
// and offers the lookups the scanners need on top of them.
package nbt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	mcnbt "github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/nbt/dynbt"
)

// maxDocument bounds one decompressed document.
const maxDocument = 32 << 20

var (
	ErrNotCompound = errors.New("nbt: root tag is not a compound")
	ErrTooLarge    = errors.New("nbt: document too large")
	ErrMalformed   = errors.New("nbt: malformed document")
)

// Decode reads one root compound. The root name is dropped.
func Decode(r io.Reader) (*dynbt.Value, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxDocument+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxDocument {
		return nil, ErrTooLarge
	}
	return Unmarshal(b)
}

// Unmarshal decodes an uncompressed document held in b.
func Unmarshal(b []byte) (root *dynbt.Value, err error) {
	if len(b) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if b[0] != mcnbt.TagCompound {
		return nil, fmt.Errorf("%w (got tag %d)", ErrNotCompound, b[0])
	}
	// The first pass only skips over the payload, so a length field larger
	// than the data behind it fails here instead of sizing an allocation.
	var skip struct{}
	if err := mcnbt.Unmarshal(b, &skip); err != nil {
		return nil, err
	}
	// dynbt panics on negative lengths, which the skip pass tolerates.
	defer func() {
		if p := recover(); p != nil {
			root, err = nil, fmt.Errorf("%w: %v", ErrMalformed, p)
		}
	}()
	root = new(dynbt.Value)
	if err := mcnbt.Unmarshal(b, root); err != nil {
		return nil, err
	}
	return root, nil
}

// Encode writes root as a document with an empty root name.
func Encode(w io.Writer, root *dynbt.Value) error {
	return mcnbt.NewEncoder(w).Encode(root, "")
}

func Marshal(root *dynbt.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Field is one named entry for NewCompound.
type Field struct {
	Name  string
	Value *dynbt.Value
}

// NewCompound builds a compound holding fields in order.
func NewCompound(fields ...Field) *dynbt.Value {
	c := dynbt.NewCompound()
	for _, f := range fields {
		c.Set(f.Name, f.Value)
	}
	return c
}

func IsCompound(v *dynbt.Value) bool {
	return v != nil && v.TagType() == mcnbt.TagCompound
}

func get(v *dynbt.Value, key string) *dynbt.Value {
	if !IsCompound(v) {
		return nil
	}
	return v.Get(key)
}

// Child returns the compound stored under key.
func Child(v *dynbt.Value, key string) (*dynbt.Value, bool) {
	c := get(v, key)
	return c, IsCompound(c)
}

// List returns the elements of the list stored under key.
func List(v *dynbt.Value, key string) ([]*dynbt.Value, bool) {
	l := get(v, key)
	if l == nil || l.TagType() != mcnbt.TagList {
		return nil, false
	}
	return l.List(), true
}

func Str(v *dynbt.Value, key string) (string, bool) {
	s := get(v, key)
	if s == nil || s.TagType() != mcnbt.TagString {
		return "", false
	}
	return s.String(), true
}

// Int returns an integral field widened to int64.
func Int(v *dynbt.Value, key string) (int64, bool) {
	return AsInt(get(v, key))
}

func IntArray(v *dynbt.Value, key string) ([]int32, bool) {
	a := get(v, key)
	if a == nil || a.TagType() != mcnbt.TagIntArray {
		return nil, false
	}
	return a.IntArray(), true
}

// AsInt widens Byte, Short, Int and Long values to int64.
func AsInt(v *dynbt.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.TagType() {
	case mcnbt.TagByte:
		return int64(v.Byte()), true
	case mcnbt.TagShort:
		return int64(v.Short()), true
	case mcnbt.TagInt:
		return int64(v.Int()), true
	case mcnbt.TagLong:
		return v.Long(), true
	}
	return 0, false
}

// AsFloat widens any numeric value to float64.
func AsFloat(v *dynbt.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.TagType() {
	case mcnbt.TagFloat:
		return float64(v.Float()), true
	case mcnbt.TagDouble:
		return v.Double(), true
	}
	n, ok := AsInt(v)
	return float64(n), ok
}
