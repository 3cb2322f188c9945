package config

import "time"

// GetDefaultConfig returns the configuration used when no config file is
// present. Provider credentials have no defaults and must come from the
// config file or environment.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:          3000,
			BaseURL:       "http://localhost:3000",
			SecureCookies: false,
		},
		Session: SessionConfig{
			TTL:   24 * time.Hour,
			Store: SessionStoreMemory,
		},
		Auth: AuthConfig{
			Google: GoogleConfig{
				AdminDomain:   "admin.com",
				PremiumDomain: "gmail.com",
			},
		},
		Policy: PolicyConfig{
			File: "policy.csv",
		},
		PublicPaths: []string{
			"/",
			"/auth/google",
			"/auth/google/callback",
			"/healthz",
			"/metrics",
		},
		StaticPrefix: "/static",
	}
}
