package apiclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/propfront/propfront/internal/domain"
)

type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

// ParseAPIError builds the error for a non-2xx response. Field errors keep
// the order the server wrote them in, which a plain map decode would lose.
func ParseAPIError(status int, raw []byte) *domain.APIError {
	apiErr := &domain.APIError{Status: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(http.StatusText(status))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(body.Message)
	if apiErr.Message == "" {
		apiErr.Message = nestedMessage(body.Error)
	}
	apiErr.FieldErrors = decodeFieldErrors(body.Errors)
	return apiErr
}

// nestedMessage reads "error" as either a string or {message: ...}.
func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

func decodeFieldErrors(raw json.RawMessage) []domain.FieldError {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var out []domain.FieldError
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out
		}
		field, ok := keyTok.(string)
		if !ok {
			return out
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return out
		}
		out = append(out, domain.FieldError{Field: field, Messages: decodeMessages(value)})
	}
	return out
}

func decodeMessages(raw json.RawMessage) []string {
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var one string
	if json.Unmarshal(raw, &one) == nil {
		return []string{one}
	}
	return nil
}
