package nbt

import (
	mcnbt "github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/nbt/dynbt"
)

// Plain converts a value into JSON/YAML friendly Go values. When keys is
// non-empty only those top-level compound fields are kept.
func Plain(v *dynbt.Value, keys ...string) (any, error) {
	src := v
	if len(keys) > 0 && IsCompound(v) {
		src = dynbt.NewCompound()
		for _, k := range keys {
			if f := v.Get(k); f != nil {
				src.Set(k, f)
			}
		}
	}
	b, err := mcnbt.Marshal(src)
	if err != nil {
		return nil, err
	}
	var out any
	if err := mcnbt.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return signedBytes(out), nil
}

// signedBytes turns byte arrays into []int8 so they render as numbers.
func signedBytes(v any) any {
	switch t := v.(type) {
	case []byte:
		out := make([]int8, len(t))
		for i, b := range t {
			out[i] = int8(b)
		}
		return out
	case []any:
		for i := range t {
			t[i] = signedBytes(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = signedBytes(t[k])
		}
	}
	return v
}
