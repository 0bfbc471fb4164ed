package acquire

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// maxFetchBytes caps how much of any fetched response is read into
// memory. Anything useful for judging fits well under this.
const maxFetchBytes = 2 << 20

const userAgent = "showhn-judge/1.0"

// newGuardedClient builds an HTTP client that refuses to connect to
// non-public addresses. The check runs at dial time, after DNS
// resolution, so a hostname pointing at 169.254.169.254 is caught the
// same as a literal IP.
func newGuardedClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		Control:   guardAddress,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func guardAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("splitting dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %q is not an IP", ErrForbiddenAddress, host)
	}
	// IsPrivate covers RFC 1918 and IPv6 unique-local; link-local covers
	// the cloud metadata endpoint.
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, ip)
	}
	return nil
}
