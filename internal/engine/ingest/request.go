package ingest

import (
	"encoding/json"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ClientIP returns the first X-Forwarded-For entry, falling back to the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

func isJSON(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// ParseBody decodes JSON and form bodies into generic values. Anything else,
// including JSON that fails to parse, is kept as a string.
func ParseBody(contentType string, raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}

	mt := mediaType(contentType)
	switch {
	case isJSON(mt):
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	case mt == "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(raw)); err == nil {
			form := make(map[string]interface{}, len(values))
			for k, vals := range values {
				if len(vals) > 0 {
					form[k] = vals[0]
				}
			}
			return form
		}
	}
	return string(raw)
}

// forwardPath is the part of the inbound path after <prefix>/<webhook_id>.
func forwardPath(requestPath, prefix, webhookID string) string {
	mount := strings.TrimRight(prefix, "/") + "/" + webhookID
	if !strings.HasPrefix(requestPath, mount) {
		return "/"
	}
	rest := requestPath[len(mount):]
	if !strings.HasPrefix(rest, "/") {
		return "/"
	}
	return rest
}

func ipAllowed(list []string, clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, entry := range list {
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

func contentTypeAllowed(allowed []string, contentType string) bool {
	mt := mediaType(contentType)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == mt || a == "*/*" {
			return true
		}
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(mt, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}

func methodAllowed(allowed []string, method string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
