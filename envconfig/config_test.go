// config_test.go - Tests fuer die Environment-Konfiguration
package envconfig

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":               {"", "127.0.0.1:11480"},
		"only address":        {"1.2.3.4", "1.2.3.4:11480"},
		"only port":           {":1234", ":1234"},
		"address and port":    {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":            {"example.com", "example.com:11480"},
		"hostname and port":   {"example.com:1234", "example.com:1234"},
		"zero port":           {":0", ":0"},
		"too large port":      {":66000", ":11480"},
		"too small port":      {":-1", ":11480"},
		"ipv6 localhost":      {"[::1]", "[::1]:11480"},
		"ipv6 world open":     {"[::]", "[::]:11480"},
		"ipv6 with port":      {"[::1]:1337", "[::1]:1337"},
		"http scheme":         {"http://1.2.3.4", "1.2.3.4:80"},
		"https scheme":        {"https://1.2.3.4", "1.2.3.4:443"},
		"https scheme + port": {"https://1.2.3.4:1234", "1.2.3.4:1234"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("SANDBOX_HOST", tt.value)
			if host := Host(); host.Host != tt.expect {
				t.Errorf("Host() = %q, erwartet %q", host.Host, tt.expect)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"true":  true,
		"false": false,
		"1":     true,
		"0":     false,
		// invalide Werte zaehlen als gesetzt
		"random":    true,
		"something": true,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("SANDBOX_BOOL", k)
			if b := Bool("SANDBOX_BOOL")(); b != v {
				t.Errorf("Bool(%q) = %v, erwartet %v", k, b, v)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"0":    0,
		"1":    1,
		"1337": 1337,
		// Fallback auf Default
		"-1":     64,
		"random": 64,
		"":       64,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("SANDBOX_MAX_SESSIONS", k)
			if i := MaxSessions(); i != v {
				t.Errorf("MaxSessions() = %d, erwartet %d", i, v)
			}
		})
	}
}

func TestKeepAlive(t *testing.T) {
	cases := map[string]time.Duration{
		"":       5 * time.Minute,
		"1s":     time.Second,
		"1m":     time.Minute,
		"1h":     time.Hour,
		"5m0s":   5 * time.Minute,
		"0":      0,
		"60":     60 * time.Second,
		"120":    2 * time.Minute,
		"3600":   time.Hour,
		"-0":     0,
		"-1":     time.Duration(math.MaxInt64),
		"-1m":    time.Duration(math.MaxInt64),
		"1d":     5 * time.Minute,
		"random": 5 * time.Minute,
	}

	for tt, expect := range cases {
		t.Run(tt, func(t *testing.T) {
			t.Setenv("SANDBOX_KEEP_ALIVE", tt)
			if actual := KeepAlive(); actual != expect {
				t.Errorf("KeepAlive() = %v, erwartet %v", actual, expect)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
		"3":     slog.Level(-12),
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("SANDBOX_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("LogLevel() = %v, erwartet %v", i, v)
			}
		})
	}
}

func TestVar(t *testing.T) {
	cases := map[string]string{
		"value":       "value",
		" value ":     "value",
		" 'value' ":   "value",
		` "value" `:   "value",
		" ' value ' ": " value ",
		` " value " `: " value ",
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("SANDBOX_VAR", k)
			if s := Var("SANDBOX_VAR"); s != v {
				t.Errorf("Var(%q) = %q, erwartet %q", k, s, v)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	t.Setenv("SANDBOX_HISTORY", "/tmp/runs.sqlite")
	if got := History(); got != "/tmp/runs.sqlite" {
		t.Errorf("History() = %q, erwartet /tmp/runs.sqlite", got)
	}
}

func TestAsMapKeys(t *testing.T) {
	var got []string
	for k, v := range AsMap() {
		if k != v.Name {
			t.Errorf("Schluessel %q passt nicht zu Name %q", k, v.Name)
		}
		if v.Description == "" {
			t.Errorf("%s hat keine Beschreibung", k)
		}
		got = append(got, k)
	}

	if diff := cmp.Diff(len(got), len(Values())); diff != "" {
		t.Errorf("Values() und AsMap() unterschiedlich lang (-AsMap +Values):\n%s", diff)
	}
}
