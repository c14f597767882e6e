package spark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SignURL returns the chat URL with the HMAC-SHA256 authorization embedded in its query.
// The signature covers the host, the request date and the GET request line.
func SignURL(rawURL, apiKey, apiSecret string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid spark URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid spark URL: missing host in %q", rawURL)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	date := now.UTC().Format(http.TimeFormat)

	signature := Signature(u.Host, date, path, apiSecret)
	authorizationOrigin := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		apiKey, signature,
	)

	query := url.Values{}
	query.Set("authorization", base64.StdEncoding.EncodeToString([]byte(authorizationOrigin)))
	query.Set("date", date)
	query.Set("host", u.Host)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// Signature computes the base64 HMAC-SHA256 over the canonical string
func Signature(host, date, path, apiSecret string) string {
	canonical := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", host, date, path)

	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
