package fchat

import (
	"errors"
	"os"
	"strings"
)

// DefaultEndpoint is the public F-Chat WebSocket server.
const DefaultEndpoint = "wss://chat.f-list.net/chat2"

// Environment variables read by ConfigFromEnv.
const (
	EnvAccount   = "FCHAT_ACCOUNT_NAME"
	EnvPassword  = "FCHAT_ACCOUNT_PASSWORD"
	EnvCharacter = "FCHAT_CHARACTER_NAME"
	EnvChannels  = "FCHAT_CHANNELS"
	EnvEndpoint  = "FCHAT_ENDPOINT"
	EnvTicketURL = "FCHAT_TICKET_URL"
)

// Config holds bot parameters.
type Config struct {
	Endpoint      string   // WebSocket URL
	TicketURL     string   // ticket endpoint
	Account       string   // F-List account name
	Password      string   // F-List account password
	Character     string   // character to log in as
	Channels      []string // channels joined after identification
	ClientName    string   // "cname" sent in IDN
	ClientVersion string   // "cversion" sent in IDN

	TranscriptPath string // zstd frame transcript; empty disables it
	MetricsAddr    string // listen address for /metrics; empty disables it

	ContinueOnHandlerError bool
}

// DefaultConfig returns a Config with the public endpoints and the stock
// channel list.
func DefaultConfig() Config {
	return Config{
		Endpoint:      DefaultEndpoint,
		TicketURL:     DefaultTicketURL,
		Channels:      []string{"Development"},
		ClientName:    "fchat-go-sdk example bot",
		ClientVersion: "1.0",
	}
}

// ConfigFromEnv overlays the FCHAT_* environment variables on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	setFromEnv(&cfg.Account, EnvAccount)
	setFromEnv(&cfg.Password, EnvPassword)
	setFromEnv(&cfg.Character, EnvCharacter)
	setFromEnv(&cfg.Endpoint, EnvEndpoint)
	setFromEnv(&cfg.TicketURL, EnvTicketURL)
	if v, ok := os.LookupEnv(EnvChannels); ok {
		cfg.Channels = SplitChannels(v)
	}
	return cfg
}

// SplitChannels parses a comma-separated channel list, dropping blanks.
func SplitChannels(s string) []string {
	var out []string
	for _, ch := range strings.Split(s, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint not configured"))
	}
	if c.TicketURL == "" {
		errs = append(errs, errors.New("ticket url not configured"))
	}
	if c.Account == "" {
		errs = append(errs, errors.New(EnvAccount+" not configured"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New(EnvPassword+" not configured"))
	}
	if c.Character == "" {
		errs = append(errs, errors.New(EnvCharacter+" not configured"))
	}
	return errors.Join(errs...)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
