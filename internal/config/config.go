package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no explicit path is given.
const DefaultPath = "reconciled.yaml"

// Duration wraps time.Duration so YAML accepts "15m" style values.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the top-level reconciled.yaml configuration.
type Config struct {
	Ledger   LedgerConfig    `yaml:"ledger"`
	Pushover PushoverConfig  `yaml:"pushover,omitempty"`
	Log      LogConfig       `yaml:"log,omitempty"`
	Accounts []AccountConfig `yaml:"accounts"`
}

// LedgerConfig identifies the budgeting service the reconciliation writes to.
type LedgerConfig struct {
	BaseURL     string `yaml:"base_url"`
	BudgetID    string `yaml:"budget_id"`
	BearerToken string `yaml:"bearer_token,omitempty"` // usually supplied via env
}

// PushoverConfig carries push-notification credentials. Both keys empty means
// notifications are disabled.
type PushoverConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	UserKey string `yaml:"user_key,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Format string `yaml:"format,omitempty"` // "text" (default) or "json"
}

// AccountConfig maps one real-world account to its ledger identity and the
// settings its balance source needs.
type AccountConfig struct {
	Name                  string `yaml:"name"`
	Kind                  string `yaml:"kind"` // "brokerage" or "portal"
	LedgerAccountID       string `yaml:"ledger_account_id"`
	ReconciliationPayeeID string `yaml:"reconciliation_payee_id"`

	Brokerage *BrokerageConfig `yaml:"brokerage,omitempty"`
	Portal    *PortalConfig    `yaml:"portal,omitempty"`
}

// BrokerageConfig configures an OAuth-backed brokerage balance source.
type BrokerageConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthorizeURL string `yaml:"authorize_url"`
	TokenURL     string `yaml:"token_url"`
	APIURL       string `yaml:"api_url"`

	TokenCachePath string `yaml:"token_cache_path"`
	ListenAddr     string `yaml:"listen_addr"`

	// How long to wait for the user to complete the interactive login before
	// the run gives up. Zero waits forever.
	LoginWaitTimeout Duration `yaml:"login_wait_timeout,omitempty"`
}

// PortalConfig configures a credential-login banking portal source.
type PortalConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Username      string   `yaml:"username"`
	DateOfBirth   string   `yaml:"date_of_birth"`
	Password      string   `yaml:"password,omitempty"`
	SecureNumbers []string `yaml:"secure_numbers,omitempty"` // all six digits, in order
}

// envOverrides are settings that may be supplied (or overridden) via
// RECONCILED_* environment variables so secrets stay out of the YAML file.
type envOverrides struct {
	LedgerBearerToken string `envconfig:"LEDGER_BEARER_TOKEN"`
	PushoverAPIKey    string `envconfig:"PUSHOVER_API_KEY"`
	PushoverUserKey   string `envconfig:"PUSHOVER_USER_KEY"`
}

// Load reads a reconciled.yaml file from disk, applies RECONCILED_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("reconciled", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if env.LedgerBearerToken != "" {
		cfg.Ledger.BearerToken = env.LedgerBearerToken
	}
	if env.PushoverAPIKey != "" {
		cfg.Pushover.APIKey = env.PushoverAPIKey
	}
	if env.PushoverUserKey != "" {
		cfg.Pushover.UserKey = env.PushoverUserKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that everything a run will need is present, so missing
// settings fail before any network call.
func (c *Config) Validate() error {
	if c.Ledger.BaseURL == "" {
		return errors.New("config: ledger.base_url is required")
	}
	if c.Ledger.BudgetID == "" {
		return errors.New("config: ledger.budget_id is required")
	}
	if c.Ledger.BearerToken == "" {
		return errors.New("config: ledger bearer token is required (ledger.bearer_token or RECONCILED_LEDGER_BEARER_TOKEN)")
	}
	if len(c.Accounts) == 0 {
		return errors.New("config: at least one account is required")
	}
	for i := range c.Accounts {
		if err := c.Accounts[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a *AccountConfig) validate() error {
	if a.Name == "" {
		return errors.New("config: account name is required")
	}
	if a.LedgerAccountID == "" {
		return fmt.Errorf("config: account %q: ledger_account_id is required", a.Name)
	}
	if a.ReconciliationPayeeID == "" {
		return fmt.Errorf("config: account %q: reconciliation_payee_id is required", a.Name)
	}
	switch a.Kind {
	case "brokerage":
		if a.Brokerage == nil {
			return fmt.Errorf("config: account %q: brokerage settings are required", a.Name)
		}
		return a.Brokerage.validate(a.Name)
	case "portal":
		if a.Portal == nil {
			return fmt.Errorf("config: account %q: portal settings are required", a.Name)
		}
		return a.Portal.validate(a.Name)
	default:
		return fmt.Errorf("config: account %q: unknown kind %q", a.Name, a.Kind)
	}
}

func (b *BrokerageConfig) validate(account string) error {
	required := map[string]string{
		"client_id":        b.ClientID,
		"redirect_uri":     b.RedirectURI,
		"authorize_url":    b.AuthorizeURL,
		"token_url":        b.TokenURL,
		"api_url":          b.APIURL,
		"token_cache_path": b.TokenCachePath,
		"listen_addr":      b.ListenAddr,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("config: account %q: brokerage.%s is required", account, name)
		}
	}
	return nil
}

func (p *PortalConfig) validate(account string) error {
	if p.BaseURL == "" {
		return fmt.Errorf("config: account %q: portal.base_url is required", account)
	}
	if p.Username == "" || p.DateOfBirth == "" || p.Password == "" {
		return fmt.Errorf("config: account %q: portal credentials are incomplete", account)
	}
	if len(p.SecureNumbers) != 6 {
		return fmt.Errorf("config: account %q: portal.secure_numbers needs all 6 digits, got %d", account, len(p.SecureNumbers))
	}
	return nil
}

// Account returns the configuration for a named account.
func (c *Config) Account(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("config: no account named %q", name)
}

// Default returns a starter Config for a new setup.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			BaseURL: "https://api.ynab.com/v1",
		},
		Log: LogConfig{Format: "text"},
		Accounts: []AccountConfig{
			{
				Name: "brokerage",
				Kind: "brokerage",
				Brokerage: &BrokerageConfig{
					RedirectURI:      "http://localhost:9999/",
					ListenAddr:       "localhost:9999",
					TokenCachePath:   "brokerage-token.json",
					LoginWaitTimeout: Duration(15 * time.Minute),
				},
			},
		},
	}
}
