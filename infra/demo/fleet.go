package demo

import "github.com/kilianp07/etr/core/model"

func summary(id int64, n, options, state string) model.Frame {
	return model.Frame{
		"id":               id,
		"vehicle_id":       900000000 + id%10,
		"vin":              "5Y00000000000000" + n,
		"display_name":     "Vehicle 0" + n,
		"option_codes":     options,
		"state":            state,
		"in_service":       false,
		"id_s":             "9000000000000000" + n,
		"calendar_enabled": true,
		"api_version":      6,
	}
}

func detail(s model.Frame, level int, rng, odometer float64) model.Frame {
	d := cloneFrame(s)
	d["charge_state"] = map[string]any{
		"battery_level": level,
		"battery_range": rng,
		"charge_rate":   0.0,
	}
	d["climate_state"] = map[string]any{
		"inside_temp":  21.5,
		"outside_temp": 14.0,
	}
	d["gui_settings"] = map[string]any{
		"gui_24_hour_time":      true,
		"gui_charge_rate_units": "kW",
		"gui_distance_units":    "km/hr",
		"gui_temperature_units": "C",
	}
	d["vehicle_state"] = map[string]any{
		"car_version":  "2019.20.1 9973c22",
		"locked":       true,
		"odometer":     odometer,
		"vehicle_name": s.DisplayName(),
	}
	return d
}

// defaultFleet has three online vehicles and one asleep. Only the first two
// online vehicles have detail data.
func defaultFleet() ([]model.Frame, map[string]model.Frame) {
	v1 := summary(90000000000000001, "1", "MDL3", "online")
	v2 := summary(90000000000000002, "2", "MDLS", "online")
	v3 := summary(90000000000000003, "3", "MDLX", "online")
	v4 := summary(90000000000000004, "4", "MDLS", "asleep")
	details := map[string]model.Frame{
		v1.ID(): detail(v1, 82, 254.29, 4032.811076),
		v2.ID(): detail(v2, 57, 176.4, 18211.3),
	}
	return []model.Frame{v1, v2, v3, v4}, details
}

// cloneFrame deep copies maps and slices so callers never share state with
// the fleet.
func cloneFrame(f model.Frame) model.Frame {
	return model.Frame(cloneValue(map[string]any(f)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case model.Frame:
		return cloneFrame(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
