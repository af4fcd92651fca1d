package domain

import "fmt"

// LoginResult is what the authenticator hands back on a successful login.
type LoginResult struct {
	Token   string      `json:"token"`
	Profile *RawProfile `json:"user,omitempty"`
}

// FieldError is one entry of the server's field validation map, kept in
// the order the server sent it.
type FieldError struct {
	Field    string
	Messages []string
}

// APIError is a non-2xx response from the marketplace API.
type APIError struct {
	Status      int
	Message     string
	FieldErrors []FieldError
}

func (e *APIError) Error() string {
	if msg := e.FirstFieldMessage(); msg != "" {
		return fmt.Sprintf("api status %d: %s", e.Status, msg)
	}
	if e.Message != "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api status %d", e.Status)
}

// FirstFieldMessage returns the first non-empty field message or "".
func (e *APIError) FirstFieldMessage() string {
	for _, f := range e.FieldErrors {
		for _, m := range f.Messages {
			if m != "" {
				return m
			}
		}
	}
	return ""
}
