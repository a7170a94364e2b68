package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SuccessResultCode is the ResultCode the provider sends for a successful outcome.
const SuccessResultCode = 0

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// STKCallback is Body.stkCallback of a payment-in result.
type STKCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Metadata          []MetadataItem

	// Raw is the stkCallback object exactly as received.
	Raw json.RawMessage
}

func (c STKCallback) Succeeded() bool { return c.ResultCode == SuccessResultCode }

// Receipt returns the MpesaReceiptNumber metadata item, if present.
func (c STKCallback) Receipt() string {
	for _, it := range c.Metadata {
		if it.Name == "MpesaReceiptNumber" {
			if s, ok := it.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// B2CResult is Result of a payment-out result.
type B2CResult struct {
	ResultType               int
	ResultCode               int
	ResultDesc               string
	OriginatorConversationID string
	ConversationID           string
	TransactionID            string

	// Raw is the Result object exactly as received.
	Raw json.RawMessage
}

func (r B2CResult) Succeeded() bool { return r.ResultCode == SuccessResultCode }

type stkEnvelope struct {
	Body *struct {
		STKCallback json.RawMessage `json:"stkCallback"`
	} `json:"Body"`
}

type stkFields struct {
	MerchantRequestID string          `json:"MerchantRequestID"`
	CheckoutRequestID *string         `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        *string         `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// DecodeSTKCallback parses and validates {"Body":{"stkCallback":{...}}}.
func DecodeSTKCallback(r io.Reader) (STKCallback, error) {
	var env stkEnvelope
	if err := decodeStrictJSON(r, &env); err != nil {
		return STKCallback{}, &PayloadError{Kind: "stkCallback", Fields: []FieldError{{Field: "body", Msg: err.Error()}}}
	}
	if env.Body == nil {
		return STKCallback{}, missing("stkCallback", "Body")
	}
	if isNull(env.Body.STKCallback) {
		return STKCallback{}, missing("stkCallback", "Body.stkCallback")
	}

	var f stkFields
	if err := json.Unmarshal(env.Body.STKCallback, &f); err != nil {
		return STKCallback{}, &PayloadError{Kind: "stkCallback", Fields: []FieldError{{Field: "Body.stkCallback", Msg: "must be an object"}}}
	}

	var errs []FieldError
	if f.CheckoutRequestID == nil || strings.TrimSpace(*f.CheckoutRequestID) == "" {
		errs = append(errs, FieldError{Field: "Body.stkCallback.CheckoutRequestID", Msg: "required"})
	}
	code, cerr := parseResultCode(f.ResultCode)
	if cerr != nil {
		errs = append(errs, FieldError{Field: "Body.stkCallback.ResultCode", Msg: cerr.Error()})
	}
	if len(errs) > 0 {
		return STKCallback{}, &PayloadError{Kind: "stkCallback", Fields: errs}
	}

	cb := STKCallback{
		MerchantRequestID: f.MerchantRequestID,
		CheckoutRequestID: strings.TrimSpace(*f.CheckoutRequestID),
		ResultCode:        code,
		Raw:               env.Body.STKCallback,
	}
	if f.ResultDesc != nil {
		cb.ResultDesc = *f.ResultDesc
	}
	if f.CallbackMetadata != nil {
		cb.Metadata = f.CallbackMetadata.Item
	}
	return cb, nil
}

type b2cEnvelope struct {
	Result json.RawMessage `json:"Result"`
}

type b2cFields struct {
	ResultType               json.RawMessage `json:"ResultType"`
	ResultCode               json.RawMessage `json:"ResultCode"`
	ResultDesc               *string         `json:"ResultDesc"`
	OriginatorConversationID string          `json:"OriginatorConversationID"`
	ConversationID           *string         `json:"ConversationID"`
	TransactionID            string          `json:"TransactionID"`
}

// DecodeB2CResult parses and validates {"Result":{...}}.
func DecodeB2CResult(r io.Reader) (B2CResult, error) {
	var env b2cEnvelope
	if err := decodeStrictJSON(r, &env); err != nil {
		return B2CResult{}, &PayloadError{Kind: "b2cResult", Fields: []FieldError{{Field: "body", Msg: err.Error()}}}
	}
	if isNull(env.Result) {
		return B2CResult{}, missing("b2cResult", "Result")
	}

	var f b2cFields
	if err := json.Unmarshal(env.Result, &f); err != nil {
		return B2CResult{}, &PayloadError{Kind: "b2cResult", Fields: []FieldError{{Field: "Result", Msg: "must be an object"}}}
	}

	var errs []FieldError
	if f.ConversationID == nil || strings.TrimSpace(*f.ConversationID) == "" {
		errs = append(errs, FieldError{Field: "Result.ConversationID", Msg: "required"})
	}
	code, cerr := parseResultCode(f.ResultCode)
	if cerr != nil {
		errs = append(errs, FieldError{Field: "Result.ResultCode", Msg: cerr.Error()})
	}
	if len(errs) > 0 {
		return B2CResult{}, &PayloadError{Kind: "b2cResult", Fields: errs}
	}

	res := B2CResult{
		ResultCode:               code,
		OriginatorConversationID: f.OriginatorConversationID,
		ConversationID:           strings.TrimSpace(*f.ConversationID),
		TransactionID:            f.TransactionID,
		Raw:                      env.Result,
	}
	if f.ResultDesc != nil {
		res.ResultDesc = *f.ResultDesc
	}
	if t, err := parseResultCode(f.ResultType); err == nil {
		res.ResultType = t
	}
	return res, nil
}

func decodeStrictJSON(r io.Reader, v any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("malformed json")
	}
	return nil
}

// parseResultCode only accepts an integer JSON number. A quoted "0" is a
// schema violation, never a success.
func parseResultCode(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, fmt.Errorf("required")
	}
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		return 0, fmt.Errorf("must be a number, got a string")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func missing(kind, field string) *PayloadError {
	return &PayloadError{Kind: kind, Fields: []FieldError{{Field: field, Msg: "required"}}}
}
