// Package conflict computes and resolves per-field differences between a
// freshly extracted field set and a previously stored record.
package conflict

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/schema"
)

// Entry describes one field whose stored and proposed values disagree.
type Entry struct {
	FieldName     string `json:"field_name"`
	CurrentValue  string `json:"current_value"`
	ProposedValue string `json:"proposed_value"`
	Meaningful    bool   `json:"meaningful"`
}

// Action is an operator resolution for one surfaced entry.
type Action string

const (
	// ActionUpdate adopts the proposed value.
	ActionUpdate Action = "update"
	// ActionKeep retains the stored value.
	ActionKeep Action = "keep"
	// ActionMerge concatenates stored and proposed.
	ActionMerge Action = "merge"
)

// Diff compares the proposed accumulator against the stored record. It
// returns the entries that need an operator decision, sorted by field name,
// plus a new accumulator with every non-surfaced field auto-resolved.
//
// A difference is meaningful only when the normalized values differ and both
// sides carry real data. When only one side is informative the informative
// value wins silently, so stored data is never clobbered by a no-data
// placeholder. The identity field and reserved columns are never diffed.
func Diff(current model.Record, proposed map[string]string, identityField string) ([]Entry, map[string]string) {
	carried := make(map[string]string, len(proposed))
	var surfaced []Entry

	for name, proposedValue := range proposed {
		if name == identityField || model.IsReservedColumn(name) {
			carried[name] = proposedValue
			continue
		}
		currentValue := current.Get(name)

		if meaningful(currentValue, proposedValue) {
			surfaced = append(surfaced, Entry{
				FieldName:     name,
				CurrentValue:  currentValue,
				ProposedValue: proposedValue,
				Meaningful:    true,
			})
			// Until the operator decides, the accumulator holds the stored
			// value; an undecided field must not overwrite prior data.
			carried[name] = currentValue
			continue
		}

		carried[name] = autoResolve(currentValue, proposedValue)
	}

	sort.Slice(surfaced, func(i, j int) bool {
		return surfaced[i].FieldName < surfaced[j].FieldName
	})
	return surfaced, carried
}

// Resolve returns the accumulator value for a surfaced entry under the given
// action. override replaces the proposed value for ActionUpdate when the
// operator hand-edited it; it is ignored otherwise.
func Resolve(e Entry, action Action, override string) (string, error) {
	switch action {
	case ActionUpdate:
		if override != "" {
			return override, nil
		}
		return e.ProposedValue, nil
	case ActionKeep:
		return e.CurrentValue, nil
	case ActionMerge:
		return e.CurrentValue + schema.Separator + e.ProposedValue, nil
	default:
		return "", eris.Errorf("conflict: unknown action %q for field %q", action, e.FieldName)
	}
}

// meaningful implements the both-sides-informative policy.
func meaningful(current, proposed string) bool {
	if !model.Informative(current) || !model.Informative(proposed) {
		return false
	}
	return !model.Match(current, proposed, false)
}

// autoResolve picks the value for a field that needs no operator decision:
// prior data beats placeholders, otherwise the proposed value stands.
func autoResolve(current, proposed string) string {
	if model.Informative(proposed) {
		return proposed
	}
	if model.Informative(current) {
		return current
	}
	return proposed
}
