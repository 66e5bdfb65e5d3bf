package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Origin is a normalized browser origin. The zero Scheme marks the literal
// "null" origin browsers send from sandboxed or opaque contexts.
type Origin struct {
	Scheme string
	Host   string // host[:port], lowercased, default ports stripped, IPv6 bracketed
}

func (o Origin) Null() bool { return o.Scheme == "" }

func (o Origin) String() string {
	if o.Null() {
		return "null"
	}
	return o.Scheme + "://" + o.Host
}

// Parse validates and normalizes an Origin header value.
//
// Only http and https origins are accepted. Credentials, queries, fragments
// and paths other than "/" mark a malformed or forged header and fail.
func Parse(header string) (Origin, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return Origin{}, false
	}
	if trimmed == "null" {
		return Origin{}, true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Origin{}, false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return Origin{}, false
	}
	if u.Path != "" && u.Path != "/" {
		return Origin{}, false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, false
	}

	host, ok := canonicalHostPort(u.Host, scheme)
	if !ok {
		return Origin{}, false
	}
	return Origin{Scheme: scheme, Host: host}, true
}

// Allowed reports whether the origin may access a server reached as
// requestHost.
//
// A non-empty allowlist grants "*" and exact matches of the normalized origin
// string; an empty allowlist falls back to same-host only. Schemes are not
// compared in the same-host case because a TLS-terminating proxy may present
// the request as plain http while the browser origin is https.
func (o Origin) Allowed(requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		s := o.String()
		for _, allowed := range allowlist {
			if allowed == "*" || allowed == s {
				return true
			}
		}
		return false
	}

	// "null" can never equal a real host.
	if o.Null() {
		return false
	}
	reqHost, ok := canonicalHostPort(strings.TrimSpace(requestHost), o.Scheme)
	if !ok {
		return false
	}
	return o.Host == reqHost
}

// canonicalHostPort lowercases an authority, validates the port, strips the
// scheme's default port, and re-brackets IPv6 literals.
func canonicalHostPort(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitAuthority(strings.ToLower(authority))
	if !ok || hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitAuthority splits host[:port], unbracketing IPv6 literals. The port is
// returned unvalidated and is empty when absent.
func splitAuthority(authority string) (hostname, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = authority[1:end]
		rest := authority[end+1:]
		switch {
		case rest == "":
			return hostname, "", true
		case strings.HasPrefix(rest, ":") && len(rest) > 1:
			return hostname, rest[1:], true
		default:
			return "", "", false
		}
	}
	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", true
	case 1:
		i := strings.IndexByte(authority, ':')
		if i == 0 || i == len(authority)-1 {
			return "", "", false
		}
		return authority[:i], authority[i+1:], true
	default:
		// An unbracketed IPv6 literal is not a valid authority.
		return "", "", false
	}
}
