package orchestrator

import (
	"fmt"

	"github.com/aescanero/capo/pkg/domain"
)

// Validator validates the structure of submitted plans. It does not check
// that capabilities exist or that dependencies form a DAG: unknown names
// fail per call and unsatisfiable dependencies run best-effort.
type Validator struct{}

// NewValidator creates a new plan validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a plan structure
func (v *Validator) Validate(plan *domain.QueryPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is nil", domain.ErrInvalidPlan)
	}

	if len(plan.Calls) == 0 {
		return fmt.Errorf("%w: plan must have at least one call", domain.ErrInvalidPlan)
	}

	for i, call := range plan.Calls {
		if err := v.validateCall(call); err != nil {
			return fmt.Errorf("%w: call %d: %v", domain.ErrInvalidPlan, i, err)
		}
	}

	return nil
}

// validateCall validates a single call
func (v *Validator) validateCall(call domain.CapabilityCall) error {
	if call.Name == "" {
		return fmt.Errorf("capability name is required")
	}

	for _, dep := range call.DependsOn {
		if dep == "" {
			return fmt.Errorf("capability %s has an empty dependency name", call.Name)
		}
	}

	return nil
}
