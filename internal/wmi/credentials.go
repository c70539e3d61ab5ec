package wmi

import (
	"fmt"
	"strings"
)

// domainSeparator splits DOMAIN\user.
const domainSeparator = `\`

// ParseCredentials splits username into domain and user. A username without
// a separator has an empty domain; with one, it must split into exactly two
// non-empty parts.
func ParseCredentials(username string) (Credentials, error) {
	if !strings.Contains(username, domainSeparator) {
		return Credentials{User: username}, nil
	}

	parts := strings.Split(username, domainSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Credentials{}, newError(KindInvalidCredential, "parse_credentials",
			"username must be in DOMAIN\\user form",
			fmt.Errorf("%q splits into %d parts", username, len(parts)))
	}

	return Credentials{Domain: parts[0], User: parts[1]}, nil
}
