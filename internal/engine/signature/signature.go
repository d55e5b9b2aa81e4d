package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"
)

const (
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"

	Hex    = "hex"
	Base64 = "base64"
)

var Algorithms = []string{SHA1, SHA256, SHA512}
var Encodings = []string{Hex, Base64}

func hasher(algorithm string) func() hash.Hash {
	switch algorithm {
	case SHA1:
		return sha1.New
	case SHA256, "":
		return sha256.New
	case SHA512:
		return sha512.New
	default:
		return nil
	}
}

// Sign returns the keyed digest of payload in the given encoding. Empty
// algorithm and encoding default to sha256 and hex. An unknown algorithm or
// encoding yields "".
func Sign(payload []byte, secret, algorithm, encoding string) string {
	newHash := hasher(algorithm)
	if newHash == nil {
		return ""
	}
	h := hmac.New(newHash, []byte(secret))
	h.Write(payload)
	sum := h.Sum(nil)

	switch encoding {
	case Hex, "":
		return hex.EncodeToString(sum)
	case Base64:
		return base64.StdEncoding.EncodeToString(sum)
	default:
		return ""
	}
}

// Validate checks a presented signature against the raw body. A leading
// "<algorithm>=" label is stripped first, as in "sha256=ab12...". Comparison is
// constant time; any malformed input is reported as invalid.
func Validate(payload []byte, presented, secret, algorithm, encoding string) bool {
	if secret == "" || presented == "" {
		return false
	}
	if algorithm == "" {
		algorithm = SHA256
	}

	expected := Sign(payload, secret, algorithm, encoding)
	if expected == "" {
		return false
	}

	presented = strings.TrimSpace(presented)
	presented = strings.TrimPrefix(presented, algorithm+"=")
	if encoding == Hex || encoding == "" {
		presented = strings.ToLower(presented)
	}

	return hmac.Equal([]byte(expected), []byte(presented))
}
