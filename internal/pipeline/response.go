package pipeline

import (
	"encoding/json"
	"net/http"
)

// AgentResponse is the outbound envelope for /v1/agent.
type AgentResponse struct {
	Status    string                 `json:"status"`
	Provider  string                 `json:"provider,omitempty"`
	Output    string                 `json:"output"`
	RequestID string                 `json:"request_id"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ErrorResponse is the uniform error envelope for every non-2xx response.
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Error     string                 `json:"error"`
	RequestID string                 `json:"request_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the uniform error envelope. On error the envelope
// carries no output field.
func writeError(w http.ResponseWriter, status int, requestID, message string, metadata map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{
		Status:    "error",
		Error:     message,
		RequestID: requestID,
		Metadata:  metadata,
	})
}
