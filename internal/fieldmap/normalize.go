package fieldmap

import "strings"

// DefaultTruthyValues are the checkbox sub-variable values counted as checked
var DefaultTruthyValues = []string{"1"}

// Normalizer turns a RawRecord into Normalized values
type Normalizer struct {
	truthy map[string]struct{}
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithTruthyValues replaces the set of values counted as a checked checkbox.
// Matching is case-insensitive and ignores surrounding whitespace.
func WithTruthyValues(values ...string) NormalizerOption {
	return func(n *Normalizer) {
		n.truthy = make(map[string]struct{}, len(values))
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				n.truthy[v] = struct{}{}
			}
		}
	}
}

// NewNormalizer creates a Normalizer using DefaultTruthyValues unless overridden
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{}
	WithTruthyValues(DefaultTruthyValues...)(n)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize uses a default Normalizer
func Normalize(raw RawRecord) Normalized {
	return NewNormalizer().Normalize(raw)
}

// IsTruthy reports whether a checkbox sub-variable value means "checked"
func (n *Normalizer) IsTruthy(value string) bool {
	_, ok := n.truthy[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Normalize collapses checkbox sub-variables into one MultiChoiceValue per
// base and keeps every other variable as a TextValue. Whether a "___" key is
// really a checkbox is settled later against the template.
func (n *Normalizer) Normalize(raw RawRecord) Normalized {
	out := make(Normalized, len(raw))
	groups := make(map[string]MultiChoiceValue)

	for key, value := range raw {
		base, option, ok := SplitCheckboxKey(key)
		if !ok {
			out[key] = TextValue{Name: key, Text: value}
			continue
		}
		g, seen := groups[base]
		if !seen {
			g = MultiChoiceValue{Name: base, Selected: OptionSet{}, Raw: map[string]string{}}
			groups[base] = g
		}
		g.Raw[option] = value
		if n.IsTruthy(value) {
			g.Selected.Add(option)
		}
	}

	// a checkbox family owns its base name over a plain variable of the same name
	for base, g := range groups {
		out[base] = g
	}
	return out
}
