package fieldmap

import "encoding/json"

// FillValue is what the writer puts into one PDF field.
// The set of implementations is closed: TextFill, ChoiceFill and GroupFill.
type FillValue interface {
	isFill()
}

// TextFill is written verbatim into a text field
type TextFill string

// ChoiceFill selects one export value of a choice field or radio group
type ChoiceFill string

// GroupFill lists the export values to switch on in a checkbox group, sorted.
// Options not listed are switched off.
type GroupFill []string

func (TextFill) isFill()   {}
func (ChoiceFill) isFill() {}
func (GroupFill) isFill()  {}

// FillInstruction maps PDF field names to the value to write.
// Fields the record has nothing valid for are absent.
type FillInstruction map[string]FillValue

// MarshalJSON renders text and choice fills as strings and group fills as arrays
func (fi FillInstruction) MarshalJSON() ([]byte, error) {
	plain := make(map[string]interface{}, len(fi))
	for name, v := range fi {
		switch v := v.(type) {
		case TextFill:
			plain[name] = string(v)
		case ChoiceFill:
			plain[name] = string(v)
		case GroupFill:
			plain[name] = []string(v)
		}
	}
	return json.Marshal(plain)
}

// OmissionReason explains why a template field was left untouched
type OmissionReason string

const (
	ReasonMissing            OmissionReason = "missing"
	ReasonKindMismatch       OmissionReason = "kind_mismatch"
	ReasonUnknownExportValue OmissionReason = "unknown_export_value"
	ReasonNoSelection        OmissionReason = "no_selection"
)

// Omission records a template field that received no value
type Omission struct {
	Field  string         `json:"field"`
	Reason OmissionReason `json:"reason"`
	Value  string         `json:"value,omitempty"`
}
