package core

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodySize = 1 << 20 // 1 MiB

// Path returns the trimmed value of the named path parameter.
func Path(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

// Query returns the trimmed value of the named query parameter.
func Query(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// BodyJson decodes the request body into the given target struct.
func BodyJson(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}

	return nil
}
