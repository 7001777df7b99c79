package webdav

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/config"
	"github.com/shapedtime/classfs/internal/mount"
)

// Authenticate guards the mounted archives with HTTP Basic authentication.
// Without a configured user next is returned unwrapped.
func Authenticate(next http.Handler, cfg config.WebDAVConfig, table *mount.Table) http.Handler {
	if cfg.User == "" {
		return next
	}
	return &authHandler{
		next:      next,
		user:      []byte(cfg.User),
		pass:      []byte(cfg.Pass),
		table:     table,
		challenge: `Basic realm=` + strconv.Quote(realm(table)) + `, charset="UTF-8"`,
		log:       log.Logger.With().Str("component", "webdav-auth").Logger(),
	}
}

type authHandler struct {
	next       http.Handler
	user, pass []byte
	table      *mount.Table
	challenge  string
	log        zerolog.Logger
}

func (h *authHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if ok && h.valid(user, pass) {
		h.next.ServeHTTP(w, r)
		return
	}

	e := h.log.Warn().
		Bool("credentials", ok).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr)
	if name := h.archive(r.URL.Path); name != "" {
		e = e.Str("archive", name)
	}
	e.Msg("rejected unauthenticated request")

	w.Header().Set("WWW-Authenticate", h.challenge)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// valid compares both fields in constant time.
func (h *authHandler) valid(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), h.user)
	p := subtle.ConstantTimeCompare([]byte(pass), h.pass)
	return u&p == 1
}

// archive names the mounted archive a request path points into, if any.
func (h *authHandler) archive(p string) string {
	if _, top, err := h.table.Translate(p); top || err != nil {
		return ""
	}
	name, _, _ := strings.Cut(mount.Clean(p)[1:], "/")
	return name
}

// realm lists the mount names so clients show what they are unlocking.
func realm(table *mount.Table) string {
	names := table.Names()
	if len(names) == 0 {
		return "classfs"
	}
	return "classfs: " + strings.Join(names, ", ")
}

// CheckAuth logs how the mounted archives are exposed.
func CheckAuth(cfg config.WebDAVConfig, table *mount.Table) {
	n := len(table.Names())
	switch {
	case cfg.User == "":
		if n > 0 {
			log.Warn().Int("archives", n).Msg("webdav authentication is disabled, archives are readable by anyone")
		}
	case cfg.Pass == "":
		log.Warn().Msg("webdav auth enabled but password is empty")
	case len(cfg.Pass) < 8:
		log.Warn().Msg("webdav password is less than 8 characters, consider using a stronger password")
	default:
		log.Info().Str("user", cfg.User).Int("archives", n).Msg("webdav authentication enabled")
	}
}
