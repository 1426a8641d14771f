package speech

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Credentials selects how requests are authorized. APIKey wins when both are set.
type Credentials struct {
	APIKey      string
	AccessToken string
}

// Empty reports whether no credential is configured.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.AccessToken) == ""
}

// authTransport authorizes outgoing Google API requests and logs
// method, URL, status and latency at debug level. Bodies are never logged.
type authTransport struct {
	base   http.RoundTripper
	creds  Credentials
	logger zerolog.Logger
}

// RoundTrip clones req, adds the credential header and delegates.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	out := req.Clone(req.Context())
	switch {
	case t.creds.APIKey != "":
		out.Header.Set("X-Goog-Api-Key", t.creds.APIKey)
	case t.creds.AccessToken != "":
		out.Header.Set("Authorization", "Bearer "+t.creds.AccessToken)
	}

	rt := t.base
	if rt == nil {
		rt = http.DefaultTransport
	}
	resp, err := rt.RoundTrip(out)
	if err != nil {
		t.logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.Redacted()).
			Dur("elapsed", time.Since(start)).Msg("google api request failed")
		return resp, err
	}

	t.logger.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("google api request")
	return resp, nil
}

// NewAuthorizedClient builds the pre-authenticated client handed to the gateways.
func NewAuthorizedClient(creds Credentials, timeout time.Duration, logger zerolog.Logger) (*http.Client, error) {
	if creds.Empty() {
		return nil, errors.New("speech credentials are required")
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &authTransport{base: http.DefaultTransport, creds: creds, logger: logger},
	}, nil
}
