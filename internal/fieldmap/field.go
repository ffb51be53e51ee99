package fieldmap

// Field describes one fillable field discovered in a PDF template.
// The set of implementations is closed: TextField, SingleChoiceField and GroupField.
type Field interface {
	FieldName() string
	Kind() FieldKind
	isField()
}

// FieldKind names a Field variant for display and serialization
type FieldKind string

const (
	FieldKindText         FieldKind = "text"
	FieldKindSingleChoice FieldKind = "choice"
	FieldKindRadioGroup   FieldKind = "radio_group"
	FieldKindCheckGroup   FieldKind = "checkbox_group"
)

// TextField is a free-text widget
type TextField struct {
	Name string `json:"name"`
}

// SingleChoiceField is a combo box or list box holding one export value
type SingleChoiceField struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// GroupField is a family of checkbox or radio widgets addressed by export value.
// Exclusive groups (radio semantics) accept at most one "on" option.
type GroupField struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Exclusive bool     `json:"exclusive"`
}

func (f TextField) FieldName() string         { return f.Name }
func (f SingleChoiceField) FieldName() string { return f.Name }
func (f GroupField) FieldName() string        { return f.Name }

func (TextField) Kind() FieldKind         { return FieldKindText }
func (SingleChoiceField) Kind() FieldKind { return FieldKindSingleChoice }

func (f GroupField) Kind() FieldKind {
	if f.Exclusive {
		return FieldKindRadioGroup
	}
	return FieldKindCheckGroup
}

func (TextField) isField()         {}
func (SingleChoiceField) isField() {}
func (GroupField) isField()        {}

// FieldOptions returns the valid export values of a field, nil for text fields
func FieldOptions(f Field) []string {
	switch f := f.(type) {
	case SingleChoiceField:
		return f.Options
	case GroupField:
		return f.Options
	default:
		return nil
	}
}

func indexFields(fields []Field) map[string]Field {
	idx := make(map[string]Field, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		idx[f.FieldName()] = f
	}
	return idx
}

func containsOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
