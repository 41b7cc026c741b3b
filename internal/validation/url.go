package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidURL is wrapped by every rejection from URLValidator.
var ErrInvalidURL = errors.New("invalid URL")

// URLValidator checks URLs the application will dial: listing feeds to
// import and the hosted backend base URL.
type URLValidator struct {
	// AllowLocalhost determines if localhost URLs are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	// RequireHTTPS rejects plain http, used where credentials travel with the request
	RequireHTTPS bool
	// MaxLength is the maximum allowed URL length
	MaxLength int
}

// NewURLValidator creates a new validator with secure defaults
func NewURLValidator() *URLValidator {
	return &URLValidator{
		MaxLength: 2048,
	}
}

// NewPermissiveURLValidator allows local development servers.
func NewPermissiveURLValidator() *URLValidator {
	return &URLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// NewBackendURLValidator validates backend.url. Plain http is only accepted
// for local development hosts.
func NewBackendURLValidator() *URLValidator {
	return &URLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		RequireHTTPS:    true,
		MaxLength:       512,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidURL, fmt.Sprintf(format, args...))
}

// ValidateAndNormalize validates a URL and returns the normalized version
func (v *URLValidator) ValidateAndNormalize(input string) (string, error) {
	parsed, err := v.parse(input)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// ValidateBaseURL validates a service root. Query strings and fragments are
// rejected and a trailing slash is dropped so paths can be appended.
func (v *URLValidator) ValidateBaseURL(input string) (string, error) {
	parsed, err := v.parse(input)
	if err != nil {
		return "", err
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", invalid("base URL must not carry a query or fragment")
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

func (v *URLValidator) parse(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return nil, invalid("URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return nil, invalid("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return nil, invalid("URL contains invalid characters")
	}

	// Default to HTTPS
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		if strings.Contains(input, "://") {
			return nil, invalid("URL must use http or https protocol")
		}
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return nil, invalid("URL must have a valid hostname")
	}

	hostname := strings.ToLower(parsed.Hostname())
	local := isLocalhost(hostname)
	ip := net.ParseIP(hostname)
	private := ip != nil && isPrivateIP(ip)

	if !v.AllowLocalhost && local {
		return nil, invalid("localhost URLs are not permitted")
	}
	if !v.AllowPrivateIPs && private {
		return nil, invalid("private IP addresses are not permitted")
	}
	if hostname == "0.0.0.0" || hostname == "255.255.255.255" {
		return nil, invalid("unroutable host %s", hostname)
	}
	if v.RequireHTTPS && parsed.Scheme != "https" && !local && !private {
		return nil, invalid("https is required for %s", hostname)
	}

	if strings.Contains(parsed.Path, "..") {
		return nil, invalid("directory traversal patterns not allowed in URL path")
	}
	lowerQuery := strings.ToLower(parsed.RawQuery)
	if strings.Contains(lowerQuery, "<script") || strings.Contains(lowerQuery, "javascript:") {
		return nil, invalid("suspicious query parameters detected")
	}

	return parsed, nil
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

var privateBlocks = func() []*net.IPNet {
	var blocks []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"127.0.0.0/8",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			blocks = append(blocks, block)
		}
	}
	return blocks
}()

// isPrivateIP reports loopback, link-local and RFC 1918 / ULA addresses.
func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
