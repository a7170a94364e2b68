package mpesa

import "time"

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	sandboxURL    = "https://sandbox.safaricom.co.ke"
	productionURL = "https://api.safaricom.co.ke"
)

// Config holds the Daraja credentials and endpoints for one business short code.
type Config struct {
	Environment    string
	BaseURL        string // overrides the environment host when set
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

func (c Config) Host() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == EnvProduction {
		return productionURL
	}
	return sandboxURL
}
