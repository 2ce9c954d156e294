// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SANDBOX_DEBUG":        {"SANDBOX_DEBUG", LogLevel(), "Show additional debug information (e.g. SANDBOX_DEBUG=1)"},
		"SANDBOX_HOST":         {"SANDBOX_HOST", Host(), "IP Address for the sandbox server (default 127.0.0.1:11480)"},
		"SANDBOX_ORIGINS":      {"SANDBOX_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"SANDBOX_KEEP_ALIVE":   {"SANDBOX_KEEP_ALIVE", KeepAlive(), "The duration an idle session keeps its worker (default \"5m\")"},
		"SANDBOX_MAX_SESSIONS": {"SANDBOX_MAX_SESSIONS", MaxSessions(), "Maximum number of concurrent sessions"},
		"SANDBOX_WEIGHT_CACHE": {"SANDBOX_WEIGHT_CACHE", WeightCache(), "Cached weight sets per worker, 0 disables (default 4)"},
		"SANDBOX_HISTORY":      {"SANDBOX_HISTORY", History(), "Path of the run history database"},
		"SANDBOX_NOHISTORY":    {"SANDBOX_NOHISTORY", NoHistory(), "Do not store exported runs"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
