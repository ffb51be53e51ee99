package fieldmap

import (
	"go.uber.org/zap"
)

// Engine decides, for every template field, what value to write
type Engine struct {
	labels map[string]map[string]string
	logger *zap.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithChoiceLabels supplies display labels per variable, keyed by option code.
// Text fields then receive the label of a coded answer, and choice fields
// whose export values are labels still match.
func WithChoiceLabels(labels map[string]map[string]string) EngineOption {
	return func(e *Engine) {
		e.labels = labels
	}
}

// WithLogger makes the engine report omissions at debug level
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a mapping engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildFillInstruction uses a default Engine
func BuildFillInstruction(n Normalized, fields []Field) FillInstruction {
	fi, _ := NewEngine().Resolve(n, fields)
	return fi
}

// BuildFillInstruction returns the values to write, omitting every field the
// record has nothing valid for
func (e *Engine) BuildFillInstruction(n Normalized, fields []Field) FillInstruction {
	fi, _ := e.Resolve(n, fields)
	return fi
}

// Resolve reconciles n against fields and maps each field. It never fails:
// fields that cannot be filled are reported as omissions instead.
func (e *Engine) Resolve(n Normalized, fields []Field) (FillInstruction, []Omission) {
	values := Reconcile(n, fields)
	fi := make(FillInstruction, len(fields))
	var omitted []Omission

	for _, f := range fields {
		if f == nil {
			continue
		}
		name := f.FieldName()
		v, ok := values[name]
		if !ok {
			omitted = append(omitted, Omission{Field: name, Reason: ReasonMissing})
			continue
		}

		var (
			fill   FillValue
			reason OmissionReason
		)
		switch f := f.(type) {
		case TextField:
			fill = e.fillText(v)
		case SingleChoiceField:
			fill, reason = e.fillSingleChoice(f, v)
		case GroupField:
			fill, reason = e.fillGroup(f, v)
		default:
			reason = ReasonKindMismatch
		}

		if fill == nil {
			o := Omission{Field: name, Reason: reason, Value: v.String()}
			e.logger.Debug("Field left untouched",
				zap.String("field", o.Field),
				zap.String("reason", string(o.Reason)),
				zap.String("value", o.Value))
			omitted = append(omitted, o)
			continue
		}
		fi[name] = fill
	}
	return fi, omitted
}

func (e *Engine) fillText(v Value) FillValue {
	switch v := v.(type) {
	case TextValue:
		return TextFill(e.label(v.Name, v.Text))
	case SingleChoiceValue:
		return TextFill(e.label(v.Name, v.Selected))
	case MultiChoiceValue:
		return TextFill(v.String())
	}
	return nil
}

func (e *Engine) fillSingleChoice(f SingleChoiceField, v Value) (FillValue, OmissionReason) {
	var selected string
	switch v := v.(type) {
	case SingleChoiceValue:
		selected = v.Selected
	case TextValue:
		selected = v.Text
	case MultiChoiceValue:
		opts := v.Selected.Intersect(f.Options)
		if len(opts) != 1 {
			return nil, ReasonKindMismatch
		}
		return ChoiceFill(opts[0]), ""
	default:
		return nil, ReasonKindMismatch
	}

	if selected == "" {
		return nil, ReasonNoSelection
	}
	if containsOption(f.Options, selected) {
		return ChoiceFill(selected), ""
	}
	if label := e.label(f.Name, selected); label != selected && containsOption(f.Options, label) {
		return ChoiceFill(label), ""
	}
	return nil, ReasonUnknownExportValue
}

func (e *Engine) fillGroup(f GroupField, v Value) (FillValue, OmissionReason) {
	switch v := v.(type) {
	case SingleChoiceValue:
		switch {
		case v.Selected == "":
			return nil, ReasonNoSelection
		case !containsOption(f.Options, v.Selected):
			return nil, ReasonUnknownExportValue
		case f.Exclusive:
			return ChoiceFill(v.Selected), ""
		}
		return GroupFill{v.Selected}, ""
	case MultiChoiceValue:
		valid := v.Selected.Intersect(f.Options)
		if !f.Exclusive {
			// only a checkbox family may switch every option off
			return GroupFill(valid), ""
		}
		switch {
		case len(valid) == 1:
			return ChoiceFill(valid[0]), ""
		case len(v.Selected) == 0:
			return nil, ReasonNoSelection
		case len(valid) == 0:
			return nil, ReasonUnknownExportValue
		}
	}
	return nil, ReasonKindMismatch
}

func (e *Engine) label(variable, code string) string {
	if labels, ok := e.labels[variable]; ok {
		if l, ok := labels[code]; ok {
			return l
		}
	}
	return code
}
