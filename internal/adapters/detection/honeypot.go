package detection

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
	"github.com/gatewarden/gatewarden/pkg/logsafe"
)

const honeypotBanDuration = 1440 * time.Minute

// DefaultHoneypotPaths is the decoy catalogue: paths with no legitimate use
// on this application, all common vulnerability-scanner targets. Requesting
// one, with any method and any payload, is conclusive evidence of scanning.
var DefaultHoneypotPaths = []string{
	"/admin",
	"/admin/login",
	"/administrator",
	"/wp-admin",
	"/wp-login.php",
	"/wp-config.php",
	"/xmlrpc.php",
	"/phpmyadmin",
	"/phpmyadmin/index.php",
	"/manager/html",
	"/console",
	"/.env",
	"/.env.local",
	"/.env.production",
	"/.git/config",
	"/.git/HEAD",
	"/.svn/entries",
	"/.htaccess",
	"/.htpasswd",
	"/.aws/credentials",
	"/.ssh/id_rsa",
	"/config.php",
	"/config.json",
	"/web.config",
	"/backup.zip",
	"/backup.sql",
	"/database.sql",
	"/db.sql",
	"/api/swagger",
	"/swagger.json",
	"/swagger-ui.html",
	"/v2/api-docs",
	"/api/graphql",
	"/server-status",
	"/shell.php",
}

// Honeypot matches requests against the decoy catalogue. A hit always
// yields 404 "Not Found" plus a 24h ban. Never 403, which would tell the
// scanner the path exists but is guarded.
//
// The pipeline consults it before the general detector chain so a decoy
// hit is intercepted regardless of what else the request contains.
type Honeypot struct {
	paths map[string]struct{}
}

// NewHoneypot builds the route set; nil paths means DefaultHoneypotPaths.
func NewHoneypot(paths []string) *Honeypot {
	if paths == nil {
		paths = DefaultHoneypotPaths
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[strings.ToLower(p)] = struct{}{}
	}
	return &Honeypot{paths: set}
}

func (*Honeypot) Name() string { return "honeypot" }

// Matches reports whether path is a decoy. Trailing slashes are ignored;
// matching is case-insensitive and method-independent.
func (h *Honeypot) Matches(path string) bool {
	p := strings.ToLower(strings.TrimRight(path, "/"))
	if p == "" {
		return false
	}
	_, ok := h.paths[p]
	return ok
}

func (h *Honeypot) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	if !h.Matches(req.Path) {
		return domain.Pass()
	}
	log.Warn().
		Str("origin", req.Origin).
		Str("path", logsafe.String(req.Path, logsafe.DefaultMaxLength)).
		Str("method", req.Method).
		Msg("Honeypot path requested")
	return domain.RejectAndBan(http.StatusNotFound, "Not Found",
		honeypotBanDuration, "honeypot:"+req.Path)
}

// PathCount returns the catalogue size, for startup logging.
func (h *Honeypot) PathCount() int { return len(h.paths) }
