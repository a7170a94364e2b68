package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	tokenPath   = "/oauth/v1/generate"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	transactionTypePayBill = "CustomerPayBillOnline"
	timestampLayout        = "20060102150405"
)

// Client talks to the Daraja API. It holds no token cache: every payment
// request acquires a fresh access token.
type Client struct {
	cfg  Config
	http *resty.Client
	now  func() time.Time
}

type Option func(*Client)

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc).SetBaseURL(c.cfg.Host())
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: resty.New().SetBaseURL(cfg.Host()),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Timeout > 0 {
		c.http.SetTimeout(cfg.Timeout)
	}
	c.http.SetHeader("Accept", "application/json")
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AcquireAccessToken exchanges the consumer key/secret for a bearer token.
func (c *Client) AcquireAccessToken(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		Get(tokenPath)
	if err != nil {
		return "", &UpstreamAuthError{Err: err}
	}
	if !resp.IsSuccess() {
		return "", &UpstreamAuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", &UpstreamAuthError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode token: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &UpstreamAuthError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("empty access_token")}
	}
	return tok.AccessToken, nil
}

type STKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous acknowledgement. It does not confirm
// the payment; the result arrives on the callback URL.
type STKPushResponse struct {
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResponseCode        string          `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	CustomerMessage     string          `json:"CustomerMessage"`
	Raw                 json.RawMessage `json:"-"`
}

type providerError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// InitiatePayment sends an STK push (Lipa Na M-Pesa Online) request.
func (c *Client) InitiatePayment(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	phone, err := NormalizeMSISDN(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return nil, fmt.Errorf("%w: amount must be a positive whole number, got %s", ErrInvalidRequest, req.Amount)
	}
	if strings.TrimSpace(req.AccountReference) == "" {
		return nil, fmt.Errorf("%w: account reference required", ErrInvalidRequest)
	}

	token, err := c.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(c.now())
	body := stkPushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionTypePayBill,
		Amount:            req.Amount.IntPart(),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   "Payment for " + req.AccountReference,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(stkPushPath)
	if err != nil {
		return nil, &UpstreamRequestError{Err: err}
	}
	if !resp.IsSuccess() {
		uerr := &UpstreamRequestError{StatusCode: resp.StatusCode()}
		var pe providerError
		if json.Unmarshal(resp.Body(), &pe) == nil {
			uerr.ProviderCode, uerr.ProviderMessage = pe.ErrorCode, pe.ErrorMessage
		}
		return nil, uerr
	}

	var ack STKPushResponse
	if err := json.Unmarshal(resp.Body(), &ack); err != nil {
		return nil, &UpstreamRequestError{StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode ack: %w", err)}
	}
	ack.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &ack, nil
}

// Timestamp renders t in UTC as yyyyMMddHHmmss, truncated to the second.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Password is base64(shortCode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// NormalizeMSISDN turns 07XXXXXXXX, 01XXXXXXXX, +254... and 254... into the
// 12 digit 254XXXXXXXXX form Daraja expects.
func NormalizeMSISDN(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	p = strings.ReplaceAll(p, " ", "")
	if strings.HasPrefix(p, "0") && len(p) == 10 {
		p = "254" + p[1:]
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") {
		return "", fmt.Errorf("%w: phone number %q is not a Kenyan MSISDN", ErrInvalidRequest, phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone number %q is not a Kenyan MSISDN", ErrInvalidRequest, phone)
		}
	}
	return p, nil
}
