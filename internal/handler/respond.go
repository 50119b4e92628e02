package handler

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// configInt reads an integer key out of a stored report snapshot. JSON
// numbers decode as float64, so both forms are accepted.
func configInt(rawConfig, key string) (int, bool) {
	if rawConfig == "" {
		return 0, false
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(rawConfig), &report); err != nil {
		return 0, false
	}
	switch v := report[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
