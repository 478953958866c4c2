// Package schema disposes of new field names proposed by extraction. It is
// pure: decisions rewrite the session's field accumulator, and the store
// realizes any actual column growth at commit time.
package schema

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/talent-ops/intake-cli/internal/model"
)

// Separator joins two values when a proposed field is merged into an
// existing one. The same separator is used by conflict resolution.
const Separator = "; "

// Action is an operator decision for one proposed field.
type Action string

const (
	// ActionAdd accepts the proposed name verbatim.
	ActionAdd Action = "add"
	// ActionRename stores the value under a different name.
	ActionRename Action = "rename"
	// ActionMerge folds the value into an existing field.
	ActionMerge Action = "merge"
	// ActionSkip discards the proposal entirely.
	ActionSkip Action = "skip"
)

// Decision carries the action plus its argument, when the action takes one.
type Decision struct {
	Action    Action `json:"action"`
	NewName   string `json:"new_name,omitempty"`
	MergeInto string `json:"merge_into,omitempty"`
}

// Apply resolves every proposal against the accumulator and returns the
// updated accumulator. The input map is not mutated. Proposals are processed
// in sorted name order so repeated runs produce identical results.
//
// Every proposal must have a decision; a missing or malformed decision is an
// error and nothing is applied.
func Apply(accumulator map[string]string, proposals map[string]string, decisions map[string]Decision) (map[string]string, error) {
	out := make(map[string]string, len(accumulator)+len(proposals))
	for k, v := range accumulator {
		out[k] = v
	}

	names := make([]string, 0, len(proposals))
	for name := range proposals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := proposals[name]
		d, ok := decisions[name]
		if !ok {
			return nil, eris.Errorf("schema: no decision for proposed field %q", name)
		}
		if err := validate(name, d); err != nil {
			return nil, err
		}

		switch d.Action {
		case ActionAdd:
			out[name] = value
		case ActionRename:
			// A collision with an already-populated name is an overwrite;
			// the operator's decision wins.
			out[d.NewName] = value
		case ActionMerge:
			if existing, ok := out[d.MergeInto]; ok && model.Informative(existing) {
				out[d.MergeInto] = existing + Separator + value
			} else {
				out[d.MergeInto] = value
			}
		case ActionSkip:
			// Value discarded; the name never enters the schema.
		}
	}

	return out, nil
}

func validate(name string, d Decision) error {
	switch d.Action {
	case ActionAdd:
		if model.IsReservedColumn(name) {
			return eris.Errorf("schema: proposed field %q is a reserved column", name)
		}
	case ActionRename:
		if d.NewName == "" {
			return eris.Errorf("schema: rename of %q needs a new name", name)
		}
		if model.IsReservedColumn(d.NewName) {
			return eris.Errorf("schema: cannot rename %q to reserved column %q", name, d.NewName)
		}
	case ActionMerge:
		if d.MergeInto == "" {
			return eris.Errorf("schema: merge of %q needs a target field", name)
		}
		if model.IsReservedColumn(d.MergeInto) {
			return eris.Errorf("schema: cannot merge %q into reserved column %q", name, d.MergeInto)
		}
	case ActionSkip:
	default:
		return eris.Errorf("schema: unknown action %q for field %q", d.Action, name)
	}
	return nil
}
