package blueprint

import (
	"fmt"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/graph"
)

// validate enforces the schema invariants: non-empty component names and
// locators, wiring endpoints that resolve to declared components (or host),
// and well-formed workflow steps.
func validate(bp *Blueprint) error {
	for name, locator := range bp.Components {
		if name == "" {
			return errors.New(errors.ErrCodeConfigSchema, "component with empty name")
		}
		if locator == "" {
			return errors.New(errors.ErrCodeConfigSchema,
				fmt.Sprintf("component %q: empty locator", name))
		}
	}

	known := func(name string) bool {
		if name == graph.HostNode {
			return true
		}
		_, ok := bp.Components[name]
		return ok
	}

	for consumer, conn := range bp.Wiring {
		if conn.Provider == "" {
			return errors.New(errors.ErrCodeConfigSchema,
				fmt.Sprintf("wiring entry %q: empty provider", consumer))
		}
		if c := ComponentOf(consumer); !known(c) {
			return errors.New(errors.ErrCodeConfigSchema,
				fmt.Sprintf("wiring entry %q: unknown consumer component %q", consumer, c))
		}
		if p := conn.ProviderComponent(); !known(p) {
			return errors.New(errors.ErrCodeConfigSchema,
				fmt.Sprintf("wiring entry %q: unknown provider component %q", consumer, p))
		}
	}

	if bp.Workflow != nil {
		seen := make(map[string]bool, len(bp.Workflow.Steps))
		for i, step := range bp.Workflow.Steps {
			if step.ID == "" {
				return errors.New(errors.ErrCodeConfigSchema,
					fmt.Sprintf("workflow step %d: missing id", i))
			}
			if seen[step.ID] {
				return errors.New(errors.ErrCodeConfigSchema,
					fmt.Sprintf("workflow step %q: duplicate id", step.ID))
			}
			seen[step.ID] = true
			if step.Function == "" {
				return errors.New(errors.ErrCodeConfigSchema,
					fmt.Sprintf("workflow step %q: missing function", step.ID))
			}
			if _, ok := bp.Components[step.Component]; !ok {
				return errors.New(errors.ErrCodeConfigSchema,
					fmt.Sprintf("workflow step %q: unknown component %q", step.ID, step.Component))
			}
		}
	}

	return nil
}
