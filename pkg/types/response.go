package types

// ErrorResponse is the backend's error body.
type ErrorResponse struct {
	Status      int               `json:"status,omitempty"`
	Error       string            `json:"error,omitempty"`
	Message     string            `json:"message,omitempty"`
	ErrorCode   string            `json:"errorCode,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Path        string            `json:"path,omitempty"`
}
