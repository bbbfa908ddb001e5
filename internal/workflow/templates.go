package workflow

// Step spacing for generated order keys. Template step N lands on N*100,
// leaving 99 free slots between adjacent steps for manual insertion.
const OrderIndexSpacing = 100

// templates maps a workflow selector to its fixed, ordered list of step
// titles. Selectors are stable identifiers coming from the element payload.
var templates = map[string][]string{
	"steel_erection": {
		"Fabrication review",
		"Delivery inspection",
		"Erection",
		"Alignment survey",
		"Final sign-off",
	},
	"concrete_pour": {
		"Formwork check",
		"Rebar inspection",
		"Pour",
		"Curing verification",
		"Strength test",
	},
	"facade_panel": {
		"Panel delivery",
		"Mounting",
		"Sealing",
		"QA inspection",
	},
	"mep_rough_in": {
		"Routing approval",
		"Installation",
		"Pressure test",
	},
}

// Steps returns the ordered step titles of a named workflow. The boolean is
// false when the selector does not match any known template.
func Steps(selector string) ([]string, bool) {
	steps, ok := templates[selector]
	if !ok {
		return nil, false
	}
	out := make([]string, len(steps))
	copy(out, steps)
	return out, true
}

func KnownWorkflows() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	return names
}
