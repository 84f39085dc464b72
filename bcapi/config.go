package bcapi

import (
	"fmt"
	"os"

	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

// AzureADConfig holds the client-credentials identity used to acquire bearer
// tokens from Entra ID. All fields are optional: an incomplete identity
// switches the client into offline/mock mode instead of failing startup.
type AzureADConfig struct {
	TenantID     string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	// Authority defaults to https://login.microsoftonline.com/{tenant}.
	Authority string `json:"authority,omitempty" yaml:"authority,omitempty" validate:"omitempty,url"`
}

// Configured reports whether the full client identity is present.
func (c *AzureADConfig) Configured() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// BusinessCentralConfig holds the company- and environment-scoped API
// coordinates.
type BusinessCentralConfig struct {
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	CompanyID   string `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	// BaseURL defaults to
	// https://api.businesscentral.dynamics.com/v2.0/{tenant}/{environment}/api/v2.0.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

// Config is the full client configuration.
type Config struct {
	AzureAD AzureADConfig         `json:"azure_ad" yaml:"azure_ad"`
	BC      BusinessCentralConfig `json:"business_central" yaml:"business_central"`
}

// LoadConfig reads a YAML or JSON config file with environment-variable
// expansion. An empty file name returns a config populated from the
// environment only.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return NewConfigFromEnv(), nil
	}
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// NewConfigFromEnv populates the config from AZURE_* and BC_* environment
// variables. Missing identity values are kept empty; callers detect offline
// mode through AzureAD.Configured.
func NewConfigFromEnv() *Config {
	cfg := &Config{
		AzureAD: AzureADConfig{
			TenantID:     os.Getenv("AZURE_TENANT_ID"),
			ClientID:     os.Getenv("AZURE_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
		},
		BC: BusinessCentralConfig{
			Environment: values.StringsCoalesce(os.Getenv("BC_ENVIRONMENT"), "production"),
			CompanyID:   os.Getenv("BC_COMPANY_ID"),
			BaseURL:     os.Getenv("BC_BASE_URL"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.BC.Environment = values.StringsCoalesce(cfg.BC.Environment, "production")
	if cfg.AzureAD.Authority == "" && cfg.AzureAD.TenantID != "" {
		cfg.AzureAD.Authority = "https://login.microsoftonline.com/" + cfg.AzureAD.TenantID
	}
	if cfg.BC.BaseURL == "" && cfg.AzureAD.TenantID != "" {
		cfg.BC.BaseURL = fmt.Sprintf(
			"https://api.businesscentral.dynamics.com/v2.0/%s/%s/api/v2.0",
			cfg.AzureAD.TenantID, cfg.BC.Environment)
	}
}

// Validate checks field formats and reports whether the configuration is
// complete enough to reach the live API. An incomplete identity is logged
// and returns false without an error: the client then serves offline mode.
func (cfg *Config) Validate() (bool, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return false, err
	}

	hasIdentity := cfg.AzureAD.Configured()
	hasCompany := cfg.BC.CompanyID != ""
	switch {
	case hasIdentity && hasCompany:
		return true, nil
	case !hasIdentity && !hasCompany:
		logger.KV(xlog.WARNING, "status", "offline_mode", "reason", "no Azure AD identity or company configured")
	default:
		logger.KV(xlog.WARNING, "status", "offline_mode", "reason", "partial configuration",
			"has_identity", hasIdentity, "has_company", hasCompany)
	}
	return false, nil
}
