package api

// ProcessRequest represents the request payload for triggering processing
type ProcessRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ProcessResponse represents the success payload for a processed session
type ProcessResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// DeleteResponse represents the success payload for a lecture deletion
type DeleteResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
