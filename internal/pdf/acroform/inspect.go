package acroform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
)

// Field flag bits (PDF 32000-1:2008, 12.7.3.1 and 12.7.4.2)
const (
	flagReadOnly   = 1 << 0
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

const (
	offState = "Off"
	// maxFieldDepth bounds the field hierarchy walk against reference cycles
	maxFieldDepth = 32
)

// widget is one visible annotation of a terminal field
type widget struct {
	dict    types.Dict
	onState string
}

// formField is a terminal AcroForm field
type formField struct {
	name     string
	dict     types.Dict
	ft       string
	flags    int
	options  []string
	widgets  []widget
	readOnly bool
}

func (f *formField) isRadio() bool      { return f.ft == "Btn" && f.flags&flagRadio != 0 }
func (f *formField) isPushbutton() bool { return f.ft == "Btn" && f.flags&flagPushbutton != 0 }

// onStates returns the distinct widget on-states in widget order
func (f *formField) onStates() []string {
	var states []string
	seen := make(map[string]bool)
	for _, w := range f.widgets {
		if w.onState != "" && !seen[w.onState] {
			seen[w.onState] = true
			states = append(states, w.onState)
		}
	}
	return states
}

// collectFields walks the AcroForm field tree and returns terminal fields in document order
func collectFields(ctx *model.Context, logger *zap.Logger) (types.Dict, []*formField, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		logger.Debug("No AcroForm dictionary found in document")
		return nil, nil, nil
	}

	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil, nil, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		logger.Debug("No Fields array found in AcroForm")
		return acroFormDict, nil, nil
	}

	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	w := &walker{ctx: ctx, logger: logger}
	for i, fieldRef := range fieldsArray {
		if err := w.walk(fieldRef, "", "", 0, 0); err != nil {
			logger.Debug("Skipping unreadable field", zap.Int("index", i), zap.Error(err))
		}
	}
	return acroFormDict, w.fields, nil
}

type walker struct {
	ctx    *model.Context
	logger *zap.Logger
	fields []*formField
}

// walk visits one node of the field tree, inheriting FT and Ff from its parent
func (w *walker) walk(obj types.Object, parentName, ft string, flags, depth int) error {
	if depth > maxFieldDepth {
		return fmt.Errorf("field hierarchy deeper than %d under %q", maxFieldDepth, parentName)
	}

	dict, err := w.ctx.DereferenceDict(obj)
	if err != nil {
		return fmt.Errorf("failed to dereference field: %w", err)
	}
	if dict == nil {
		return nil
	}

	name := parentName
	if partial := w.stringEntry(dict, "T"); partial != "" {
		if name != "" {
			name += "."
		}
		name += partial
	}

	if ftObj, found := dict.Find("FT"); found {
		if n, err := w.ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			ft = string(n)
		}
	}
	if flagsObj, found := dict.Find("Ff"); found {
		if f, err := w.ctx.DereferenceInteger(flagsObj); err == nil && f != nil {
			flags = int(*f)
		}
	}

	var kidFields []types.Object
	var widgets []widget
	if kidsObj, found := dict.Find("Kids"); found {
		kids, err := w.ctx.DereferenceArray(kidsObj)
		if err != nil {
			return fmt.Errorf("failed to dereference Kids of %q: %w", name, err)
		}
		for _, kid := range kids {
			kidDict, err := w.ctx.DereferenceDict(kid)
			if err != nil || kidDict == nil {
				continue
			}
			if _, isField := kidDict.Find("T"); isField {
				kidFields = append(kidFields, kid)
				continue
			}
			widgets = append(widgets, widget{dict: kidDict, onState: w.onState(kidDict)})
		}
	} else {
		widgets = append(widgets, widget{dict: dict, onState: w.onState(dict)})
	}

	for _, kid := range kidFields {
		if err := w.walk(kid, name, ft, flags, depth+1); err != nil {
			w.logger.Debug("Skipping unreadable field", zap.String("parent", name), zap.Error(err))
		}
	}

	if len(widgets) == 0 {
		return nil
	}
	if name == "" {
		w.logger.Debug("Skipping unnamed field")
		return nil
	}

	field := &formField{
		name:     name,
		dict:     dict,
		ft:       ft,
		flags:    flags,
		widgets:  widgets,
		readOnly: flags&flagReadOnly != 0,
	}
	if ft == "Ch" {
		field.options = w.choiceOptions(dict)
	}
	w.fields = append(w.fields, field)
	return nil
}

func (w *walker) stringEntry(dict types.Dict, key string) string {
	obj, found := dict.Find(key)
	if !found {
		return ""
	}
	s, err := w.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

// onState returns the widget's "on" appearance name, if it has one
func (w *walker) onState(widgetDict types.Dict) string {
	apObj, found := widgetDict.Find("AP")
	if !found {
		return ""
	}
	apDict, err := w.ctx.DereferenceDict(apObj)
	if err != nil || apDict == nil {
		return ""
	}
	for _, key := range []string{"N", "D"} {
		stateObj, found := apDict.Find(key)
		if !found {
			continue
		}
		states, err := w.ctx.DereferenceDict(stateObj)
		if err != nil || states == nil {
			continue
		}
		names := make([]string, 0, len(states))
		for k := range states {
			if k != offState {
				names = append(names, k)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			return names[0]
		}
	}
	return ""
}

// choiceOptions returns the export values listed in Opt
func (w *walker) choiceOptions(dict types.Dict) []string {
	var options []string

	optObj, found := dict.Find("Opt")
	if !found {
		return options
	}
	optArray, err := w.ctx.DereferenceArray(optObj)
	if err != nil {
		return options
	}

	for _, opt := range optArray {
		// entries are either a text string or an [export display] pair
		if str, err := w.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			options = append(options, str)
		} else if arr, err := w.ctx.DereferenceArray(opt); err == nil && len(arr) >= 1 {
			if export, err := w.ctx.DereferenceStringOrHexLiteral(arr[0], model.V10, nil); err == nil {
				options = append(options, export)
			}
		}
	}
	return options
}

// binding ties one descriptor to the PDF objects that realize it.
// Exactly one of field and members is set.
type binding struct {
	descriptor fieldmap.Field
	field      *formField
	members    map[string]*formField
}

func (b *binding) readOnly() bool {
	if b.field != nil {
		return b.field.readOnly
	}
	for _, m := range b.members {
		if m.readOnly {
			return true
		}
	}
	return false
}

// bindFields turns terminal fields into descriptors. Checkboxes named
// "<base>___<option>" are gathered into one group named base.
func bindFields(fields []*formField, logger *zap.Logger) []*binding {
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		if _, _, isMember := checkboxMember(f); !isMember {
			taken[f.name] = true
		}
	}

	var out []*binding
	families := make(map[string]*binding)

	for _, f := range fields {
		switch f.ft {
		case "Tx":
			out = append(out, &binding{descriptor: fieldmap.TextField{Name: f.name}, field: f})
		case "Ch":
			out = append(out, &binding{
				descriptor: fieldmap.SingleChoiceField{Name: f.name, Options: f.options},
				field:      f,
			})
		case "Btn":
			if f.isPushbutton() {
				continue
			}
			if f.isRadio() {
				out = append(out, &binding{
					descriptor: fieldmap.GroupField{Name: f.name, Options: f.onStates(), Exclusive: true},
					field:      f,
				})
				continue
			}
			if base, option, ok := checkboxMember(f); ok && !taken[base] {
				fam, seen := families[base]
				if !seen {
					fam = &binding{members: make(map[string]*formField)}
					families[base] = fam
					out = append(out, fam)
				}
				fam.members[option] = f
				continue
			}
			out = append(out, &binding{
				descriptor: fieldmap.GroupField{Name: f.name, Options: f.onStates()},
				field:      f,
			})
		default:
			logger.Debug("Skipping unsupported field", zap.String("field", f.name), zap.String("type", f.ft))
		}
	}

	for base, fam := range families {
		options := make([]string, 0, len(fam.members))
		for option := range fam.members {
			options = append(options, option)
		}
		sort.Strings(options)
		fam.descriptor = fieldmap.GroupField{Name: base, Options: options}
	}
	return out
}

// checkboxMember reports whether f is one checkbox of a "<base>___<option>" family
func checkboxMember(f *formField) (base, option string, ok bool) {
	if f.ft != "Btn" || f.isRadio() || f.isPushbutton() || strings.Contains(f.name, ".") {
		return "", "", false
	}
	return fieldmap.SplitCheckboxKey(f.name)
}
