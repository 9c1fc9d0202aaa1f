package coqui

import (
	"github.com/go-resty/resty/v2"
)

// SetToken stores an API token for later operations without validating it
// against the service. It replaces any previously stored token; the next
// operation picks up the new one because sessions are built per call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.loggedIn = false
}

// Token returns the stored API token, and whether one is stored at all.
func (c *Client) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// IsLoggedIn reports whether the stored token has been validated against the
// service by Login or ValidateLogin.
func (c *Client) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

func (c *Client) markLoggedIn(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.loggedIn = true
}

// session is an authenticated transport handle scoped to a single operation.
type session struct {
	http *resty.Client
}

func (c *Client) newSession(token string) *session {
	var rc *resty.Client
	if c.httpClient != nil {
		rc = resty.NewWithClient(c.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(c.baseURL)
	if token != "" {
		rc.SetHeader("X-Api-Key", token)
	}
	return &session{http: rc}
}

func (s *session) close() {
	s.http.GetClient().CloseIdleConnections()
}

// withSession runs fn with a session bound to the given token and guarantees
// release on every exit path.
func (c *Client) withSession(token string, fn func(*session) error) error {
	s := c.newSession(token)
	defer s.close()
	return fn(s)
}

// withAuthedSession is withSession with the stored token. It fails before any
// network activity when no token is stored.
func (c *Client) withAuthedSession(fn func(*session) error) error {
	token, ok := c.Token()
	if !ok {
		return &AuthenticationError{Reason: "not logged in"}
	}
	return c.withSession(token, fn)
}
