package audit

import (
	"reflect"
	"sort"
)

// Diff compares two field snapshots and returns old_<field>/new_<field>
// pairs for every field whose value changed.
func Diff(before, after map[string]any) map[string]any {
	keys := make([]string, 0, len(before)+len(after))
	seen := map[string]bool{}
	for k := range before {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range after {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := map[string]any{}
	for _, k := range keys {
		oldValue, hadOld := before[k]
		newValue, hasNew := after[k]
		if hadOld && hasNew && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		out["old_"+k] = oldValue
		out["new_"+k] = newValue
	}
	return out
}

// Snapshot prefixes every field with prefix, for create and delete entries.
func Snapshot(prefix string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[prefix+k] = v
	}
	return out
}
