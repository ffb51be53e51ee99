package fieldmap

import (
	"sort"
	"strings"
)

// CheckboxSeparator joins a checkbox base variable and one of its options,
// as in "smoker___yes"
const CheckboxSeparator = "___"

// RawRecord is one fetched record: variable name to raw string value
type RawRecord map[string]string

// SplitCheckboxKey splits key at the first CheckboxSeparator.
// ok is false unless both the base and the option are non-empty.
func SplitCheckboxKey(key string) (base, option string, ok bool) {
	base, option, found := strings.Cut(key, CheckboxSeparator)
	if !found || base == "" || option == "" {
		return "", "", false
	}
	return base, option, true
}

// CheckboxKey is the inverse of SplitCheckboxKey
func CheckboxKey(base, option string) string {
	return base + CheckboxSeparator + option
}

// OptionSet is an unordered set of option codes or export values
type OptionSet map[string]struct{}

// NewOptionSet builds a set from the given options
func NewOptionSet(options ...string) OptionSet {
	s := make(OptionSet, len(options))
	for _, o := range options {
		s[o] = struct{}{}
	}
	return s
}

// Add inserts an option
func (s OptionSet) Add(option string) { s[option] = struct{}{} }

// Has reports whether option is in the set
func (s OptionSet) Has(option string) bool {
	_, ok := s[option]
	return ok
}

// Sorted returns the members in lexical order
func (s OptionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for o := range s {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the members of s that appear in options, in lexical order
func (s OptionSet) Intersect(options []string) []string {
	out := make([]string, 0, len(s))
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if s.Has(o) && !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return out
}

// Value is a normalized record field. The set of implementations is closed:
// TextValue, SingleChoiceValue and MultiChoiceValue.
type Value interface {
	FieldName() string
	// String is the canonical scalar form written into text fields
	String() string
	isValue()
}

// TextValue is a scalar string
type TextValue struct {
	Name string
	Text string
}

// SingleChoiceValue holds the selected export value of a dropdown or radio.
// An empty Selected means nothing was chosen.
type SingleChoiceValue struct {
	Name     string
	Selected string
}

// MultiChoiceValue holds the selected options of a checkbox group.
// Raw keeps every sub-variable value as fetched, keyed by option.
type MultiChoiceValue struct {
	Name     string
	Selected OptionSet
	Raw      map[string]string
}

func (v TextValue) FieldName() string         { return v.Name }
func (v SingleChoiceValue) FieldName() string { return v.Name }
func (v MultiChoiceValue) FieldName() string  { return v.Name }

func (v TextValue) String() string         { return v.Text }
func (v SingleChoiceValue) String() string { return v.Selected }

func (v MultiChoiceValue) String() string {
	return strings.Join(v.Selected.Sorted(), ", ")
}

func (TextValue) isValue()         {}
func (SingleChoiceValue) isValue() {}
func (MultiChoiceValue) isValue()  {}

// Normalized maps a logical field name to its normalized value
type Normalized map[string]Value

// Flatten re-serializes n through the record naming convention. Checkbox
// groups write back the raw value seen for every option at normalization.
func (n Normalized) Flatten() RawRecord {
	raw := make(RawRecord, len(n))
	for name, v := range n {
		switch v := v.(type) {
		case MultiChoiceValue:
			for option, value := range v.Raw {
				raw[CheckboxKey(name, option)] = value
			}
		default:
			raw[name] = v.String()
		}
	}
	return raw
}
