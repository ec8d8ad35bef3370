package orchestrator

import (
	"testing"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	tests := []struct {
		name    string
		plan    *domain.QueryPlan
		wantErr bool
	}{
		{name: "nil plan", plan: nil, wantErr: true},
		{name: "no calls", plan: &domain.QueryPlan{}, wantErr: true},
		{name: "empty name", plan: &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: ""}}}, wantErr: true},
		{name: "empty dependency", plan: &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: "a", DependsOn: []string{""}}}}, wantErr: true},
		{name: "unknown dependency is allowed", plan: &domain.QueryPlan{Calls: []domain.CapabilityCall{{Name: "a", DependsOn: []string{"zzz"}}}}},
		{name: "cycle is allowed", plan: &domain.QueryPlan{Calls: []domain.CapabilityCall{
			{Name: "a", DependsOn: []string{"b"}},
			{Name: "b", DependsOn: []string{"a"}},
		}}},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.plan)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPlan)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
