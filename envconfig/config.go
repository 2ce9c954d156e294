// config.go - Haupt-Konfigurationsfunktionen fuer die Sandbox
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (SANDBOX_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (SANDBOX_ORIGINS)
// - KeepAlive: Lebensdauer inaktiver Sessions (SANDBOX_KEEP_ALIVE)
// - History: Pfad der Run-Historie (SANDBOX_HISTORY)
// - LogLevel: Gibt Log-Level zurueck (SANDBOX_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Feature-Flags und Limits
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via SANDBOX_HOST
// Default: http://127.0.0.1:11480
func Host() *url.URL {
	defaultPort := "11480"

	s := strings.TrimSpace(Var("SANDBOX_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via SANDBOX_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("SANDBOX_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	// Vite-Dev-Server und eingebettete Webviews
	origins = append(origins,
		"app://*",
		"file://*",
	)

	return origins
}

// KeepAlive gibt die Dauer zurueck, die eine inaktive Session ihren Worker behaelt
// Konfigurierbar via SANDBOX_KEEP_ALIVE
// Negative Werte = unendlich, 0 = sofort abbauen
// Default: 5 Minuten
func KeepAlive() (keepAlive time.Duration) {
	keepAlive = 5 * time.Minute
	if s := Var("SANDBOX_KEEP_ALIVE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			keepAlive = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			keepAlive = time.Duration(n) * time.Second
		}
	}

	if keepAlive < 0 {
		return time.Duration(math.MaxInt64)
	}

	return keepAlive
}

// History gibt den Pfad der Run-Historie zurueck
// Konfigurierbar via SANDBOX_HISTORY
// Default: $HOME/.sandbox/history.sqlite
func History() string {
	if s := Var("SANDBOX_HISTORY"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sandbox-history.sqlite")
	}

	return filepath.Join(home, ".sandbox", "history.sqlite")
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via SANDBOX_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SANDBOX_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
