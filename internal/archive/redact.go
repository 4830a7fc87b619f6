package archive

import "strings"

const redacted = "[redacted]"

func redactValue(name string, value string) string {
	if isSensitiveHeader(name) {
		return redacted
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
