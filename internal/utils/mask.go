package utils

import (
	"net"
	"strings"
)

// MaskIdentifier hides most of an email or IP address before it reaches logs.
//
//	jane.doe@example.com -> ja***@example.com
//	203.0.113.7          -> 203.0.*.*
//	2001:db8::1          -> 2001:db8:*
func MaskIdentifier(identifier string) string {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return ""
	}

	if at := strings.LastIndex(id, "@"); at >= 0 {
		local, domain := id[:at], id[at+1:]
		return keepPrefix(local, 2) + "***@" + domain
	}

	if ip := net.ParseIP(id); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			parts := strings.Split(v4.String(), ".")
			return parts[0] + "." + parts[1] + ".*.*"
		}
		groups := strings.Split(ip.String(), ":")
		if len(groups) >= 2 {
			return groups[0] + ":" + groups[1] + ":*"
		}
	}

	return keepPrefix(id, 2) + "***"
}

func keepPrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
