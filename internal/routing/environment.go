package routing

import "strings"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Signals are the raw deployment hints read from the process environment.
type Signals struct {
	Mode        string // NODE_ENV
	Environment string // ENVIRONMENT
	Env         string // ENV
	DatabaseURL string
	ProdMarkers []string
}

// ResolveEnvironment picks the first non-empty of Mode, Environment and Env,
// defaulting to development. A database URL containing any production
// marker forces production regardless of the explicit signals.
func ResolveEnvironment(s Signals) string {
	if s.DatabaseURL != "" {
		for _, m := range s.ProdMarkers {
			if m != "" && strings.Contains(s.DatabaseURL, m) {
				return EnvProduction
			}
		}
	}
	for _, v := range []string{s.Mode, s.Environment, s.Env} {
		if v = strings.TrimSpace(v); v != "" {
			return strings.ToLower(v)
		}
	}
	return EnvDevelopment
}
