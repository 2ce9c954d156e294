// routes_middleware.go - Middleware und Fehlerabbildung fuer den HTTP-Router
// Enthaelt: isLocalIP(), allowedHost(), allowedHostsMiddleware(), statusFor(), abortWithError()

package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/runner"
	"github.com/neivs/llmsandbox/store"
)

// localTLDs gelten immer als lokale Hosts
var localTLDs = []string{
	"localhost",
	"local",
	"internal",
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			if prefix, err := netip.ParsePrefix(a.String()); err == nil && prefix.Addr() == ip {
				return true
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range localTLDs {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen an nicht erlaubte Hosts,
// solange der Server nur auf Loopback lauscht (DNS-Rebinding)
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// statusFor bildet err auf HTTP-Status und Fehlerart ab
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, api.KindNotFound
	case errors.Is(err, ErrMaxSessions):
		return http.StatusServiceUnavailable, api.KindBusy
	case errors.Is(err, errHistoryDisabled):
		return http.StatusForbidden, api.KindInternal
	case errors.Is(err, store.ErrAmbiguous):
		return http.StatusBadRequest, api.KindNotFound
	case errors.Is(err, runner.ErrTerminated):
		return http.StatusServiceUnavailable, api.KindInternal
	}

	kind := runner.ErrorKind(err)
	switch kind {
	case api.KindInvalidHyperparameters, api.KindUnsupportedCharacter:
		return http.StatusBadRequest, kind
	case api.KindBusy:
		return http.StatusServiceUnavailable, kind
	case api.KindNumericalInstability:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// abortWithError beendet die Anfrage mit einem StatusError
func abortWithError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError && kind != api.KindBusy {
		slog.Error("request failed", "path", c.Request.URL.Path, "kind", kind, "error", err)
	}

	c.AbortWithStatusJSON(status, api.StatusError{ErrorMessage: err.Error(), Kind: kind})
}

// bindJSON liest den Body nach v; ein leerer oder kaputter Body ist ein 400
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.StatusError{ErrorMessage: err.Error(), Kind: api.KindInvalidRequest})
		return false
	}
	return true
}
