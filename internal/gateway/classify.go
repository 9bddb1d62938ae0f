package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/pscheid92/wastepoints/internal/errors"
)

// messageKeys are the generic message fields DRF-style backends use for
// errors that are not attached to a form field.
var messageKeys = []string{"detail", "error", "message", apperrors.NonFieldKey}

// classify converts a non-2xx response into a structured failure.
func classify(status int, body []byte) *apperrors.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		msg := firstMessage(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		err := apperrors.AuthorizationFailure(msg)
		err.Status = status
		return err
	case status >= 400 && status < 500:
		fields, ok := parseFieldErrors(body)
		if !ok {
			return &apperrors.Error{Kind: apperrors.KindUnknown, Status: status, Message: http.StatusText(status)}
		}
		return apperrors.ValidationFailure(status, fields)
	case status >= 500:
		msg := firstMessage(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return apperrors.ServerFailure(status, msg)
	default:
		return &apperrors.Error{Kind: apperrors.KindUnknown, Status: status, Message: fmt.Sprintf("unexpected status %d", status)}
	}
}

// parseFieldErrors reads a JSON object whose values are a message or a list
// of messages. Generic message keys are folded into non_field_errors.
func parseFieldErrors(body []byte) (map[string][]string, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil, false
	}

	fields := make(map[string][]string, len(raw))
	for key, value := range raw {
		msgs := decodeMessages(value)
		if len(msgs) == 0 {
			continue
		}
		if isMessageKey(key) {
			key = apperrors.NonFieldKey
		}
		fields[key] = append(fields[key], msgs...)
	}
	return fields, len(fields) > 0
}

func decodeMessages(value json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list
	}
	return nil
}

func isMessageKey(key string) bool {
	for _, k := range messageKeys {
		if strings.EqualFold(key, k) {
			return true
		}
	}
	return false
}

func firstMessage(body []byte) string {
	fields, ok := parseFieldErrors(body)
	if !ok {
		return ""
	}
	if msgs := fields[apperrors.NonFieldKey]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}
