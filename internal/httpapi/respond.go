package httpapi

import (
	"encoding/json"
	"net/http"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorPayload is the uniform JSON error body.
type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	// WaitSeconds is set on throttled login responses so clients can show
	// a countdown.
	WaitSeconds int `json:"wait_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorPayload{Error: code, Detail: detail})
}
