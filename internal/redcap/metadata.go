package redcap

import (
	"strings"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
)

// Field types as reported in the data dictionary
const (
	FieldTypeText      = "text"
	FieldTypeNotes     = "notes"
	FieldTypeDropdown  = "dropdown"
	FieldTypeRadio     = "radio"
	FieldTypeCheckbox  = "checkbox"
	FieldTypeYesNo     = "yesno"
	FieldTypeTrueFalse = "truefalse"
	FieldTypeCalc      = "calc"
)

// RadioChoiceSuffix names the extra text variable carrying a radio's chosen code
const RadioChoiceSuffix = "__rchoice"

// FieldMetadata is one row of a project's data dictionary
type FieldMetadata struct {
	FieldName string `json:"field_name"`
	FormName  string `json:"form_name"`
	FieldType string `json:"field_type"`
	Label     string `json:"field_label"`
	Choices   string `json:"select_choices_or_calculations"`
}

// Metadata is a project's data dictionary
type Metadata []FieldMetadata

// Choice is one coded option of a multiple-choice field
type Choice struct {
	Code  string
	Label string
}

// ParseChoices parses "1, Option A | 2, Option B". Labels may themselves
// contain ", "; a bare "|" separator is accepted too.
func ParseChoices(s string) []Choice {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, " | ")
	if len(parts) == 1 {
		parts = strings.Split(s, "|")
	}

	choices := make([]Choice, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		code, label, found := strings.Cut(p, ",")
		if !found {
			choices = append(choices, Choice{Code: p})
			continue
		}
		choices = append(choices, Choice{
			Code:  strings.TrimSpace(code),
			Label: strings.TrimSpace(label),
		})
	}
	return choices
}

// FieldsOfType returns the variable names of the given field type
func (m Metadata) FieldsOfType(fieldType string) []string {
	var names []string
	for _, f := range m {
		if f.FieldType == fieldType {
			names = append(names, f.FieldName)
		}
	}
	return names
}

// ChoiceLabels maps each multiple-choice variable to its code→label table.
// With no fieldTypes given, dropdown and radio fields are included.
func (m Metadata) ChoiceLabels(fieldTypes ...string) map[string]map[string]string {
	if len(fieldTypes) == 0 {
		fieldTypes = []string{FieldTypeDropdown, FieldTypeRadio}
	}
	want := make(map[string]bool, len(fieldTypes))
	for _, t := range fieldTypes {
		want[t] = true
	}

	labels := make(map[string]map[string]string)
	for _, f := range m {
		if !want[f.FieldType] {
			continue
		}
		choices := ParseChoices(f.Choices)
		if len(choices) == 0 {
			continue
		}
		table := make(map[string]string, len(choices))
		for _, c := range choices {
			table[c.Code] = c.Label
		}
		labels[f.FieldName] = table
	}
	return labels
}

// AddRadioChoiceText returns a copy of raw in which every answered radio
// variable also appears as "<name>__rchoice" holding the chosen code, so a
// template may bind a plain text box to a radio question
func (m Metadata) AddRadioChoiceText(raw fieldmap.RawRecord) fieldmap.RawRecord {
	out := make(fieldmap.RawRecord, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, name := range m.FieldsOfType(FieldTypeRadio) {
		v, ok := raw[name]
		if !ok || v == "" {
			continue
		}
		key := name + RadioChoiceSuffix
		if _, taken := out[key]; !taken {
			out[key] = v
		}
	}
	return out
}
