package gateway

// CheckRequest is the body of POST /api/v1/contacts/check
type CheckRequest struct {
	Phone string `json:"phone"`
}

// CheckResponse is the bridge answer to a contact check
type CheckResponse struct {
	Exists bool   `json:"exists"`
	ID     string `json:"id,omitempty"`
}

// TextRequest is the body of POST /api/v1/messages/text
type TextRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// MediaRequest is the body of POST /api/v1/messages/media
type MediaRequest struct {
	To       string `json:"to"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// SendResponse is returned by the message endpoints
type SendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// ErrorResponse is the bridge error body
type ErrorResponse struct {
	Error string `json:"error"`
}
