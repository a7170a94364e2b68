package mpesa

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUpstreamAuth    = errors.New("mpesa: access token request failed")
	ErrUpstreamRequest = errors.New("mpesa: provider request failed")
	ErrInvalidPayload  = errors.New("mpesa: invalid callback payload")
	ErrInvalidRequest  = errors.New("mpesa: invalid payment request")
)

// UpstreamAuthError is returned when the OAuth endpoint rejects the consumer
// credentials or cannot be reached.
type UpstreamAuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrUpstreamAuth, e.Err)
	}
	return fmt.Sprintf("%s: status %d", ErrUpstreamAuth, e.StatusCode)
}

func (e *UpstreamAuthError) Unwrap() error        { return e.Err }
func (e *UpstreamAuthError) Is(target error) bool { return target == ErrUpstreamAuth }

// UpstreamRequestError is returned for any non-2xx response or transport
// failure on a payment request. ProviderCode and ProviderMessage carry the
// provider's errorCode/errorMessage when the body had them.
type UpstreamRequestError struct {
	StatusCode      int
	ProviderCode    string
	ProviderMessage string
	Err             error
}

func (e *UpstreamRequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrUpstreamRequest, e.Err)
	case e.ProviderCode != "":
		return fmt.Sprintf("%s: status %d: %s %s", ErrUpstreamRequest, e.StatusCode, e.ProviderCode, e.ProviderMessage)
	default:
		return fmt.Sprintf("%s: status %d", ErrUpstreamRequest, e.StatusCode)
	}
}

func (e *UpstreamRequestError) Unwrap() error        { return e.Err }
func (e *UpstreamRequestError) Is(target error) bool { return target == ErrUpstreamRequest }

type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// PayloadError lists every schema violation found in a webhook body.
type PayloadError struct {
	Kind   string
	Fields []FieldError
}

func (e *PayloadError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidPayload.Error())
	b.WriteString(" (" + e.Kind + ")")
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + " " + f.Msg)
	}
	return b.String()
}

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }
