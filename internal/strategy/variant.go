package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Variant is a strategy instance built from an evolved parameter vector.
// It reports its own name so several variants of one base strategy can
// compete side by side.
type Variant struct {
	Strategy
	name   string
	base   string
	params map[string]float64
}

// NewVariant builds base with params and renames it.
func NewVariant(reg *Registry, base, name string, params map[string]float64) (*Variant, error) {
	s, err := reg.New(base, ToParams(params))
	if err != nil {
		return nil, err
	}

	copied := make(map[string]float64, len(params))
	for k, v := range params {
		copied[k] = v
	}

	return &Variant{Strategy: s, name: name, base: base, params: copied}, nil
}

func (v *Variant) Name() string { return v.name }

// Base returns the name of the strategy the variant was built from
func (v *Variant) Base() string { return v.base }

// Params returns a copy of the parameter vector
func (v *Variant) Params() map[string]float64 {
	out := make(map[string]float64, len(v.params))
	for k, val := range v.params {
		out[k] = val
	}
	return out
}

func (v *Variant) Description() string {
	keys := make([]string, 0, len(v.params))
	for k := range v.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.3f", k, v.params[k]))
	}
	return fmt.Sprintf("%s variant (%s)", v.base, strings.Join(parts, ", "))
}
