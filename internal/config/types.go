package config

import "time"

// Config is the top-level milecal configuration, loaded once at startup.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Policy  PolicyConfig  `yaml:"policy"`

	// PublicPaths are path prefixes reachable without authentication or
	// authorization. Compared after trailing-slash normalization.
	PublicPaths []string `yaml:"publicPaths"`

	// StaticPrefix is the asset prefix that always bypasses the gateway.
	StaticPrefix string `yaml:"staticPrefix"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// BaseURL is the externally visible URL of this gateway. OAuth
	// redirect URIs default to paths under it.
	BaseURL string `yaml:"baseURL"`

	// SecureCookies marks session cookies Secure. Disable only for
	// plain-HTTP local development.
	SecureCookies bool `yaml:"secureCookies"`
}

// SessionStoreType selects the session store backend.
type SessionStoreType string

const (
	// SessionStoreMemory keeps sessions in process memory.
	SessionStoreMemory SessionStoreType = "memory"
	// SessionStorePostgres persists sessions in a Postgres table.
	SessionStorePostgres SessionStoreType = "postgres"
)

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// TTL is the idle expiry. Every save refreshes the clock.
	TTL time.Duration `yaml:"ttl"`

	Store SessionStoreType `yaml:"store"`

	// PostgresURL is the connection string when Store is "postgres".
	PostgresURL string `yaml:"postgresURL"`
}

// AuthConfig holds settings for both identity providers.
type AuthConfig struct {
	Google GoogleConfig `yaml:"google"`
	GitHub GitHubConfig `yaml:"github"`
}

// GoogleConfig configures the primary provider. Google drives role
// derivation and supports token refresh.
type GoogleConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURL  string `yaml:"redirectURL"`

	// AdminDomain and PremiumDomain are the email domains that grant
	// the admin and premium roles.
	AdminDomain   string `yaml:"adminDomain"`
	PremiumDomain string `yaml:"premiumDomain"`
}

// GitHubConfig configures the secondary provider. GitHub supplies a
// bearer token for the milestone integration and has no refresh support.
type GitHubConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURL  string `yaml:"redirectURL"`
}

// PolicyConfig locates the declarative rule file.
type PolicyConfig struct {
	File string `yaml:"file"`
}
