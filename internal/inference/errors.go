package inference

import (
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/shaiso/Weave/internal/engine"
)

// classifiedError — ошибка API с известным классом.
// Реализует engine.ReasonedError.
type classifiedError struct {
	reason engine.InferenceReason
	err    error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// InferenceReason возвращает класс ошибки.
func (e *classifiedError) InferenceReason() engine.InferenceReason { return e.reason }

// classify определяет класс ошибки по HTTP коду genai.APIError.
// Ошибки без кода классифицирует engine.ClassifyInference по тексту.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	var reason engine.InferenceReason
	switch {
	case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
		reason = engine.InferenceReasonAuth
	case apiErr.Code == http.StatusTooManyRequests:
		reason = engine.InferenceReasonQuota
	case apiErr.Code >= http.StatusInternalServerError:
		reason = engine.InferenceReasonTransient
	default:
		// 400 с API_KEY_INVALID и прочее разбираются по тексту
		reason = engine.ClassifyInference(err)
	}

	return &classifiedError{reason: reason, err: err}
}
