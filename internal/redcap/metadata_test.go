package redcap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
)

func TestParseChoices(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Choice
	}{
		{name: "empty", in: "", want: nil},
		{
			name: "spaced separator",
			in:   "1, Option A | 2, Option B",
			want: []Choice{{Code: "1", Label: "Option A"}, {Code: "2", Label: "Option B"}},
		},
		{
			name: "bare separator",
			in:   "1, Yes|0, No",
			want: []Choice{{Code: "1", Label: "Yes"}, {Code: "0", Label: "No"}},
		},
		{
			name: "label with comma",
			in:   "3, Smith, John | 4, Doe, Jane",
			want: []Choice{{Code: "3", Label: "Smith, John"}, {Code: "4", Label: "Doe, Jane"}},
		},
		{
			name: "code only",
			in:   "A | B",
			want: []Choice{{Code: "A"}, {Code: "B"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseChoices(tt.in))
		})
	}
}

func testMetadata() Metadata {
	return Metadata{
		{FieldName: "record_id", FieldType: FieldTypeText},
		{FieldName: "state", FieldType: FieldTypeDropdown, Choices: "1, Alaska | 2, Hawaii"},
		{FieldName: "sex", FieldType: FieldTypeRadio, Choices: "0, Female | 1, Male"},
		{FieldName: "race", FieldType: FieldTypeRadio, Choices: "1, A | 2, B"},
		{FieldName: "symptoms", FieldType: FieldTypeCheckbox, Choices: "1, Cough | 2, Fever"},
	}
}

func TestMetadata_ChoiceLabels(t *testing.T) {
	md := testMetadata()

	labels := md.ChoiceLabels()
	assert.Equal(t, map[string]map[string]string{
		"state": {"1": "Alaska", "2": "Hawaii"},
		"sex":   {"0": "Female", "1": "Male"},
		"race":  {"1": "A", "2": "B"},
	}, labels)

	onlyDropdowns := md.ChoiceLabels(FieldTypeDropdown)
	assert.Len(t, onlyDropdowns, 1)
	assert.Contains(t, onlyDropdowns, "state")
}

func TestMetadata_FieldsOfType(t *testing.T) {
	md := testMetadata()
	assert.Equal(t, []string{"sex", "race"}, md.FieldsOfType(FieldTypeRadio))
	assert.Nil(t, md.FieldsOfType(FieldTypeCalc))
	assert.Equal(t, []string{"symptoms"}, md.FieldsOfType(FieldTypeCheckbox))
}

func TestMetadata_AddRadioChoiceText(t *testing.T) {
	md := testMetadata()
	raw := fieldmap.RawRecord{"sex": "1", "race": "", "state": "2"}

	got := md.AddRadioChoiceText(raw)

	assert.Equal(t, fieldmap.RawRecord{
		"sex":          "1",
		"race":         "",
		"state":        "2",
		"sex__rchoice": "1",
	}, got)
	assert.NotContains(t, raw, "sex__rchoice", "input must not be modified")
}
