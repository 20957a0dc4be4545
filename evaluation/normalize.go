package evaluation

import (
	"encoding/json"
	"fmt"
)

// Mapper is implemented by completion objects that can materialize
// themselves as a mapping, such as *llm.Response.
type Mapper interface {
	AsMap() (map[string]any, error)
}

// normalize collapses a raw completion into a mapping. A Mapper is asked
// first, a map is used as-is, and anything else goes through a JSON
// round trip.
func normalize(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, ErrNilCompletion
	case Mapper:
		m, err := v.AsMap()
		if err != nil {
			return nil, fmt.Errorf("materialize completion: %w", err)
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	case map[string]any:
		return v, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrNotMapping, raw, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotMapping, raw)
	}
	return m, nil
}
