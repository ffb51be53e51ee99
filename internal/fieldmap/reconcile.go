package fieldmap

// Reconcile re-tags tentatively normalized values against the template's
// declared field kinds. It returns a new mapping and leaves n untouched.
//
//   - a checkbox family with no GroupField of its name also exposes each
//     sub-variable under its full "<base>___<option>" name: as the field's
//     on-state when that name is a group field, as literal text otherwise
//   - a TextValue bound to a single-choice field or any group field becomes
//     the SingleChoiceValue it encodes
func Reconcile(n Normalized, fields []Field) Normalized {
	idx := indexFields(fields)
	out := make(Normalized, len(n))
	for name, v := range n {
		out[name] = v
	}

	for name, v := range n {
		switch v := v.(type) {
		case MultiChoiceValue:
			if _, isGroup := idx[name].(GroupField); isGroup {
				continue
			}
			for option, rawValue := range v.Raw {
				key := CheckboxKey(name, option)
				if _, taken := out[key]; taken {
					continue
				}
				if g, ok := idx[key].(GroupField); ok {
					out[key] = memberValue(g, v.Selected.Has(option), rawValue)
					continue
				}
				out[key] = TextValue{Name: key, Text: rawValue}
			}
		case TextValue:
			switch idx[name].(type) {
			case SingleChoiceField, GroupField:
				out[name] = SingleChoiceValue{Name: name, Selected: v.Text}
			}
		}
	}
	return out
}

// memberValue turns one checkbox sub-variable into a value for a group field
// named after it. A checked sub-variable selects the field's on-states.
func memberValue(g GroupField, checked bool, rawValue string) Value {
	mv := MultiChoiceValue{Name: g.Name, Selected: OptionSet{}, Raw: make(map[string]string, len(g.Options))}
	for _, opt := range g.Options {
		mv.Raw[opt] = rawValue
		if checked {
			mv.Selected.Add(opt)
		}
	}
	return mv
}
