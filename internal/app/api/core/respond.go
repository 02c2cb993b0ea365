package core

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with the given status code. Encoding errors are
// silently ignored, the response is already partially written at that point.
func JSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if data == nil {
		_, _ = w.Write([]byte("null"))
		return
	}

	_ = json.NewEncoder(w).Encode(data)
}

// Status writes a response with the given status code and no body.
func Status(w http.ResponseWriter, code int) {
	w.WriteHeader(code)
}
