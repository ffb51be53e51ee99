package acroform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
)

// DefaultDirPerm is used when creating the output directory
const DefaultDirPerm = 0o750

// ErrNoAcroForm is returned by Fill when the document has no interactive form
var ErrNoAcroForm = errors.New("document has no AcroForm")

// Template is an AcroForm PDF loaded for introspection and filling
type Template struct {
	ctx      *model.Context
	acroForm types.Dict
	bindings []*binding
	byName   map[string]*binding
	logger   *zap.Logger
}

// Open loads a template from disk
func Open(path string, logger *zap.Logger) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	return Read(bytes.NewReader(data), logger)
}

// Read loads a template from rs
func Read(rs io.ReadSeeker, logger *zap.Logger) (*Template, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	acroForm, fields, err := collectFields(ctx, logger)
	if err != nil {
		return nil, err
	}

	t := &Template{
		ctx:      ctx,
		acroForm: acroForm,
		bindings: bindFields(fields, logger),
		logger:   logger,
	}
	t.byName = make(map[string]*binding, len(t.bindings))
	for _, b := range t.bindings {
		t.byName[b.descriptor.FieldName()] = b
	}

	logger.Debug("Loaded template", zap.Int("fields", len(t.bindings)))
	return t, nil
}

// Fields returns the template's fillable field descriptors in document order
func (t *Template) Fields() []fieldmap.Field {
	out := make([]fieldmap.Field, 0, len(t.bindings))
	for _, b := range t.bindings {
		out = append(out, b.descriptor)
	}
	return out
}

// PageCount returns the number of pages
func (t *Template) PageCount() int {
	return t.ctx.PageCount
}

// FillReport lists what Fill did with each instruction entry
type FillReport struct {
	Filled  []string `json:"filled"`
	Skipped []string `json:"skipped,omitempty"`
}

// Fill applies fi to the document in memory. Entries naming unknown fields
// or carrying a value the field cannot hold are skipped; fields not named
// in fi are left as they are.
func (t *Template) Fill(fi fieldmap.FillInstruction) (*FillReport, error) {
	if t.acroForm == nil {
		return nil, ErrNoAcroForm
	}

	report := &FillReport{}
	for _, b := range t.bindings {
		name := b.descriptor.FieldName()
		v, ok := fi[name]
		if !ok {
			continue
		}
		if b.readOnly() {
			t.logger.Debug("Field is read-only", zap.String("field", name))
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if t.apply(b, v) {
			report.Filled = append(report.Filled, name)
		} else {
			t.logger.Debug("Cannot apply value to field", zap.String("field", name))
			report.Skipped = append(report.Skipped, name)
		}
	}
	for name := range fi {
		if _, known := t.byName[name]; !known {
			report.Skipped = append(report.Skipped, name)
		}
	}

	// viewers rebuild appearances for the values written above
	t.acroForm.Update("NeedAppearances", types.Boolean(true))
	return report, nil
}

func (t *Template) apply(b *binding, v fieldmap.FillValue) bool {
	if b.members != nil {
		on, ok := selection(v)
		if !ok {
			return false
		}
		for option, member := range b.members {
			setCheckbox(member, on[option])
		}
		return true
	}

	f := b.field
	switch f.ft {
	case "Tx":
		s, ok := v.(fieldmap.TextFill)
		if !ok {
			return false
		}
		setText(f, string(s))
		return true
	case "Ch":
		s, ok := v.(fieldmap.ChoiceFill)
		if !ok {
			return false
		}
		setText(f, string(s))
		return true
	case "Btn":
		on, ok := selection(v)
		if !ok {
			return false
		}
		setButtons(f, on)
		return true
	}
	return false
}

// selection converts a group or choice fill into the set of on-states
func selection(v fieldmap.FillValue) (map[string]bool, bool) {
	switch v := v.(type) {
	case fieldmap.GroupFill:
		on := make(map[string]bool, len(v))
		for _, o := range v {
			on[o] = true
		}
		return on, true
	case fieldmap.ChoiceFill:
		return map[string]bool{string(v): true}, true
	}
	return nil, false
}

func setText(f *formField, s string) {
	f.dict.Update("V", encodeText(s))
	for _, w := range f.widgets {
		w.dict.Delete("AP")
	}
}

// setCheckbox switches every widget of a single checkbox on or off
func setCheckbox(f *formField, on bool) {
	state := offState
	if on {
		states := f.onStates()
		if len(states) > 0 {
			state = states[0]
		} else {
			state = "Yes"
		}
	}
	f.dict.Update("V", types.Name(state))
	for _, w := range f.widgets {
		w.dict.Update("AS", types.Name(state))
	}
}

// setButtons sets a radio group or multi-state checkbox from its on-states
func setButtons(f *formField, on map[string]bool) {
	value := offState
	for _, w := range f.widgets {
		state := offState
		if w.onState != "" && on[w.onState] {
			state = w.onState
			if value == offState {
				value = w.onState
			}
		}
		w.dict.Update("AS", types.Name(state))
	}
	f.dict.Update("V", types.Name(value))
}

// Values reads the current field values back as a fill instruction.
// Empty text fields and groups with nothing on are left out.
func (t *Template) Values() fieldmap.FillInstruction {
	fi := make(fieldmap.FillInstruction, len(t.bindings))
	for _, b := range t.bindings {
		name := b.descriptor.FieldName()

		if b.members != nil {
			var on []string
			for option, member := range b.members {
				if t.isOn(member) {
					on = append(on, option)
				}
			}
			if len(on) > 0 {
				fi[name] = fieldmap.GroupFill(fieldmap.NewOptionSet(on...).Sorted())
			}
			continue
		}

		switch d := b.descriptor.(type) {
		case fieldmap.TextField:
			if s := t.textValue(b.field); s != "" {
				fi[name] = fieldmap.TextFill(s)
			}
		case fieldmap.SingleChoiceField:
			if s := t.textValue(b.field); s != "" {
				fi[name] = fieldmap.ChoiceFill(s)
			}
		case fieldmap.GroupField:
			on := t.onWidgets(b.field)
			switch {
			case len(on) == 0:
			case d.Exclusive:
				fi[name] = fieldmap.ChoiceFill(on[0])
			default:
				fi[name] = fieldmap.GroupFill(on)
			}
		}
	}
	return fi
}

func (t *Template) textValue(f *formField) string {
	obj, found := f.dict.Find("V")
	if !found {
		return ""
	}
	if s, err := t.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil {
		return s
	}
	if arr, err := t.ctx.DereferenceArray(obj); err == nil && len(arr) > 0 {
		if s, err := t.ctx.DereferenceStringOrHexLiteral(arr[0], model.V10, nil); err == nil {
			return s
		}
	}
	return ""
}

func (t *Template) isOn(f *formField) bool {
	return len(t.onWidgets(f)) > 0
}

// onWidgets returns the sorted distinct on-states currently shown
func (t *Template) onWidgets(f *formField) []string {
	on := fieldmap.OptionSet{}
	for _, w := range f.widgets {
		asObj, found := w.dict.Find("AS")
		if !found {
			continue
		}
		if n, err := t.ctx.DereferenceName(asObj, model.V10, nil); err == nil && string(n) != offState && string(n) != "" {
			on.Add(string(n))
		}
	}
	return on.Sorted()
}

// Write serializes the document to w
func (t *Template) Write(w io.Writer) error {
	if err := api.WriteContext(t.ctx, w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// WriteFile writes the document to path, creating its directory if needed
func (t *Template) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.logger.Info("Creating output directory", zap.String("dir", dir))
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create output directory %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
