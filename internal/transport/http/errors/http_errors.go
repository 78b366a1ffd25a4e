package errors

import (
	"encoding/json"
	"net/http"
)

// APIError is the wire shape for every non-2xx body. Code is a stable
// machine-readable identifier; Message is for humans and may change.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
