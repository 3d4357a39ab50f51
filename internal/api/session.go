package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"

	envBaseURL = "CRAWLDASH_API_URL"
	envToken   = "CRAWLDASH_TOKEN"
)

// Session is the process-wide session context: where the backend lives and
// which bearer token authenticates this client. It is created once at
// startup and injected into the REST client and the push channel; nothing
// reads ambient global state.
type Session struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// LoadSession builds a session from explicit values, falling back to the
// environment (a local .env file is honored when present). Explicit values
// win over the environment.
func LoadSession(baseURL, token string) (Session, error) {
	_ = godotenv.Load()

	if strings.TrimSpace(baseURL) == "" {
		baseURL = os.Getenv(envBaseURL)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(token) == "" {
		token = os.Getenv(envToken)
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Session{}, fmt.Errorf("invalid backend URL %q (set %s or pass --api)", baseURL, envBaseURL)
	}

	return Session{
		BaseURL:    baseURL,
		Token:      strings.TrimSpace(token),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// PushURL derives the websocket endpoint from the REST base URL.
func (s Session) PushURL() string {
	u := s.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/ws"
}

func (s Session) authHeader() http.Header {
	h := http.Header{}
	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	return h
}
