package webhooks

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PublicIDPrefix prefixes every public webhook token, e.g. hook_01h455vb4pex5vsknk084sn02q.
const PublicIDPrefix = "hook"

// NewPublicID generates the token used in a webhook's inbound URL.
func NewPublicID() (string, error) {
	tid, err := typeid.Generate(PublicIDPrefix)
	if err != nil {
		return "", fmt.Errorf("generate webhook id: %w", err)
	}
	return tid.String(), nil
}

// ValidPublicID reports whether s is a well-formed webhook token.
func ValidPublicID(s string) bool {
	if s == "" {
		return false
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return tid.Prefix() == PublicIDPrefix
}
