package metrics

import (
	"encoding/json"

	"github.com/kilianp07/etr/core/model"
)

// frameField maps a nested frame value to a flat metric field.
type frameField struct {
	name    string
	section string
	key     string
}

// recordedFields is ordered so written points are deterministic.
var recordedFields = []frameField{
	{"battery_level", "charge_state", "battery_level"},
	{"battery_range", "charge_state", "battery_range"},
	{"charge_rate", "charge_state", "charge_rate"},
	{"inside_temp", "climate_state", "inside_temp"},
	{"outside_temp", "climate_state", "outside_temp"},
	{"speed", "drive_state", "speed"},
	{"odometer", "vehicle_state", "odometer"},
}

type namedValue struct {
	name  string
	value float64
}

// numericFields extracts the recorded numeric values present in f.
func numericFields(f model.Frame) []namedValue {
	var out []namedValue
	for _, ff := range recordedFields {
		sec := f.Section(ff.section)
		if sec == nil {
			continue
		}
		if v, ok := toFloat(sec[ff.key]); ok {
			out = append(out, namedValue{ff.name, v})
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
