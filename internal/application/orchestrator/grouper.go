package orchestrator

import (
	"cmp"
	"slices"

	"github.com/aescanero/capo/pkg/domain"
)

// DependencyAnomaly describes a call whose dependencies could not be
// satisfied, either because of a cycle or a reference to a name that is not
// in the plan.
type DependencyAnomaly struct {
	Call  string
	Unmet []string
}

// BuildExecutionGroups partitions calls into waves. Every call appears in
// exactly one group and every name in its DependsOn belongs to a strictly
// earlier group, except for calls reported as anomalies: those are emitted
// together in a final best-effort group.
//
// The input slice is not modified.
func BuildExecutionGroups(calls []domain.CapabilityCall) ([][]domain.CapabilityCall, []DependencyAnomaly) {
	remaining := slices.Clone(calls)
	slices.SortStableFunc(remaining, func(a, b domain.CapabilityCall) int {
		return cmp.Compare(a.Order, b.Order)
	})

	var groups [][]domain.CapabilityCall
	completed := make(map[string]bool, len(remaining))

	for len(remaining) > 0 {
		var ready, blocked []domain.CapabilityCall
		for _, call := range remaining {
			if dependenciesMet(call, completed) {
				ready = append(ready, call)
			} else {
				blocked = append(blocked, call)
			}
		}

		if len(ready) == 0 {
			anomalies := make([]DependencyAnomaly, 0, len(blocked))
			for _, call := range blocked {
				anomalies = append(anomalies, DependencyAnomaly{
					Call:  call.Name,
					Unmet: unmetDependencies(call, completed),
				})
			}
			return append(groups, blocked), anomalies
		}

		for _, call := range ready {
			completed[call.Name] = true
		}
		groups = append(groups, ready)
		remaining = blocked
	}

	return groups, nil
}

func dependenciesMet(call domain.CapabilityCall, completed map[string]bool) bool {
	for _, dep := range call.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func unmetDependencies(call domain.CapabilityCall, completed map[string]bool) []string {
	var unmet []string
	for _, dep := range call.DependsOn {
		if !completed[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
