// Package httpapi is the gin-based HTTP surface: identity resolution,
// the defense middleware in front of every route, the admin and health
// endpoints, and the thin business handlers (landing page, appeals).
package httpapi

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/pkg/cidrset"
)

// DefaultTrustedProxyCIDRs are the published Cloudflare edge ranges plus
// loopback for local testing. Forwarded-IP headers are only believed when
// the transport peer is inside these ranges.
var DefaultTrustedProxyCIDRs = []string{
	// IPv4
	"173.245.48.0/20",
	"103.21.244.0/22",
	"103.22.200.0/22",
	"103.31.4.0/22",
	"141.101.64.0/18",
	"108.162.192.0/18",
	"190.93.240.0/20",
	"188.114.96.0/20",
	"197.234.240.0/22",
	"198.41.128.0/17",
	"162.158.0.0/15",
	"104.16.0.0/13",
	"104.24.0.0/14",
	"172.64.0.0/13",
	"131.0.72.0/22",
	// IPv6
	"2400:cb00::/32",
	"2606:4700::/32",
	"2803:f800::/32",
	"2405:b500::/32",
	"2405:8100::/32",
	"2a06:98c0::/29",
	"2c0f:f248::/32",
	// loopback
	"127.0.0.0/8",
	"::1/128",
}

const originContextKey = "gatewarden.origin"

// IdentityResolver derives a trustworthy client origin from the transport
// peer address and optional proxy-supplied headers. Headers from an
// untrusted peer are a spoofing attempt: logged, and in strict mode the
// request is rejected outright.
type IdentityResolver struct {
	trusted *cidrset.Set
	strict  bool
}

// NewIdentityResolver builds a resolver trusting the given CIDR ranges.
// Empty cidrs means DefaultTrustedProxyCIDRs.
func NewIdentityResolver(cidrs []string, strict bool) (*IdentityResolver, error) {
	if len(cidrs) == 0 {
		cidrs = DefaultTrustedProxyCIDRs
	}
	set, err := cidrset.Parse(cidrs)
	if err != nil {
		return nil, err
	}
	return &IdentityResolver{trusted: set, strict: strict}, nil
}

// Resolve returns the client origin for a request. spoofed is true when
// forwarded headers were present but the peer is not a trusted proxy; the
// headers are ignored and the peer address itself is the origin.
func (r *IdentityResolver) Resolve(remoteAddr string, header http.Header) (origin string, spoofed bool) {
	peer := normalizeAddr(peerHost(remoteAddr))

	forwarded := forwardedClient(header)
	if forwarded == "" {
		return peer, false
	}
	if !r.trusted.ContainsString(peer) {
		return peer, true
	}
	if norm := normalizeAddr(forwarded); norm != "" {
		return norm, false
	}
	// unparseable forwarded value from a trusted proxy: fall back to the peer
	return peer, false
}

// forwardedClient extracts the claimed client address: the proxy-specific
// real-IP header wins, then the left-most X-Forwarded-For entry, which is
// the one closest to the original client.
func forwardedClient(header http.Header) string {
	if v := strings.TrimSpace(header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	xff := header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// normalizeAddr canonicalizes an address string, unmapping IPv4-mapped
// IPv6. Returns "" when unparseable.
func normalizeAddr(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return ""
	}
	return ip.Unmap().String()
}

// Middleware resolves the origin and stores it on the gin context. In
// strict mode a spoofing attempt is rejected with 403 before any detector
// runs.
func (r *IdentityResolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin, spoofed := r.Resolve(c.Request.RemoteAddr, c.Request.Header)
		if spoofed {
			log.Warn().
				Str("peer", origin).
				Str("path", c.Request.URL.Path).
				Msg("Forwarded-IP header from untrusted peer")
			if r.strict {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
				return
			}
		}
		c.Set(originContextKey, origin)
		c.Next()
	}
}

// OriginFrom returns the resolved origin stored by the identity middleware,
// falling back to gin's ClientIP when the middleware did not run.
func OriginFrom(c *gin.Context) string {
	if v, ok := c.Get(originContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}
