// internal/app/system/webwrite/webwrite.go

// Package webwrite writes JSON responses with consistent headers and the
// error envelope shared by every feature.
package webwrite

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as a JSON body with status 200.
func JSON(w http.ResponseWriter, v any) {
	JSONStatus(w, http.StatusOK, v)
}

// JSONStatus writes v as a JSON body with the given status code.
func JSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes the standard error envelope:
//
//	{ "error": { "code": "forbidden", "message": "You don't have permission..." } }
func Error(w http.ResponseWriter, status int, code, message string) {
	JSONStatus(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
