package model

// Envelope is the standard JSON body for every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *PageMeta   `json:"meta,omitempty"`
}

// PageMeta carries pagination details for list responses.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPageMeta computes TotalPages from total and limit.
func NewPageMeta(page, limit int, total int64) *PageMeta {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return &PageMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ValidationEnvelope is returned when request validation fails.
type ValidationEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
