package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Diff lists the human readable changes between two versions of a rule, as
// stored in Rule.Changes by rule updates.
func Diff(old *Rule, new *Rule) []string {
	res := make([]string, 0)

	// string fields
	if old.Name != new.Name {
		res = append(res, fmt.Sprintf("Name updated to %s", new.Name))
	}
	if old.Event.Type != new.Event.Type {
		res = append(res, fmt.Sprintf("Event updated to %s", new.Event.Type))
	}
	if old.Event.Params.Reason != new.Event.Params.Reason {
		res = append(res, fmt.Sprintf("Reason updated to %s", new.Event.Params.Reason))
	}
	if old.Event.Params.Action != new.Event.Params.Action {
		res = append(res, fmt.Sprintf("Action updated to %s", new.Event.Params.Action))
	}

	// number fields
	if old.Event.Params.Priority != new.Event.Params.Priority {
		res = append(res, fmt.Sprintf("Priority updated to %v", new.Event.Params.Priority))
	}
	if old.Event.Params.Percentage != new.Event.Params.Percentage {
		res = append(res, fmt.Sprintf("Percentage updated to %v", new.Event.Params.Percentage))
	}
	if old.Event.Params.RiskScore != new.Event.Params.RiskScore {
		res = append(res, fmt.Sprintf("RiskScore updated to %v", new.Event.Params.RiskScore))
	}
	if old.Event.Params.RequiredApprovals != new.Event.Params.RequiredApprovals {
		res = append(res, fmt.Sprintf("RequiredApprovals updated to %v", new.Event.Params.RequiredApprovals))
	}

	// structured fields
	if !sameJSON(old.Conditions, new.Conditions) {
		res = append(res, "Conditions updated")
	}
	if !reflect.DeepEqual(old.Event.Params.ActionParams, new.Event.Params.ActionParams) {
		res = append(res, "ActionParams updated")
	}

	keys := make(map[string]struct{})
	for k := range old.Event.Params.Extra {
		keys[k] = struct{}{}
	}
	for k := range new.Event.Params.Extra {
		keys[k] = struct{}{}
	}
	extra := make([]string, 0, len(keys))
	for k := range keys {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		ov, oldOK := old.Event.Params.Extra[k]
		nv, newOK := new.Event.Params.Extra[k]
		switch {
		case !newOK:
			res = append(res, fmt.Sprintf("%s removed", k))
		case !oldOK || !reflect.DeepEqual(ov, nv):
			res = append(res, fmt.Sprintf("%s updated to %v", k, nv))
		}
	}

	return res
}

func sameJSON(a, b interface{}) bool {
	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	return aerr == nil && berr == nil && string(ab) == string(bb)
}
