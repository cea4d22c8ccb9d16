package audit

import (
	"encoding/json"
	"reflect"
	"sort"
)

// FieldMap is an opaque full-record snapshot: a string-keyed map of semantic
// values (string | number | bool | nil | nested map/list) as produced by JSON
// decoding. The engine never interprets field semantics; domain validation
// belongs to the owning service.
type FieldMap map[string]interface{}

// Clone returns a deep copy of the field map.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	clone := make(FieldMap, len(m))
	for k, v := range m {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		nested := make(map[string]interface{}, len(val))
		for k, nv := range val {
			nested[k] = cloneValue(nv)
		}
		return nested
	case []interface{}:
		list := make([]interface{}, len(val))
		for i, nv := range val {
			list[i] = cloneValue(nv)
		}
		return list
	default:
		return val
	}
}

// Equal reports whether two field maps hold the same values.
func (m FieldMap) Equal(other FieldMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// ChangedFields returns the sorted set of field names whose values differ
// between old and new. Fields present on only one side count as changed.
func ChangedFields(oldValues, newValues FieldMap) []string {
	seen := make(map[string]struct{}, len(oldValues)+len(newValues))
	var changed []string

	for k, ov := range oldValues {
		seen[k] = struct{}{}
		nv, ok := newValues[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			changed = append(changed, k)
		}
	}
	for k := range newValues {
		if _, ok := seen[k]; !ok {
			changed = append(changed, k)
		}
	}

	sort.Strings(changed)
	return changed
}

// MarshalFields serializes a field map for jsonb storage. A nil map encodes
// as SQL NULL, not as the empty object.
func MarshalFields(m FieldMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// UnmarshalFields decodes a jsonb payload; nil input yields a nil map.
func UnmarshalFields(data []byte) (FieldMap, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m FieldMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
