package push

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	fcmScope           = "https://www.googleapis.com/auth/firebase.messaging"
	fcmDefaultEndpoint = "https://fcm.googleapis.com"
	serviceAccountType = "service_account"
	maxErrorBody       = 4096
)

// ServiceAccount is the subset of a Google service account key file the
// sender needs.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri,omitempty"`

	keyFile []byte
}

// ParseServiceAccount decodes a key file given either as raw JSON or base64
// encoded JSON.
func ParseServiceAccount(raw string) (*ServiceAccount, error) {
	raw = strings.TrimSpace(raw)
	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode service account: %w", err)
		}
		data = decoded
	}
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("service account requires client_email and private_key")
	}
	switch sa.Type {
	case serviceAccountType:
		sa.keyFile = data
	case "":
		// Key files pasted without their type field.
		sa.Type = serviceAccountType
		encoded, err := json.Marshal(sa)
		if err != nil {
			return nil, fmt.Errorf("encode service account: %w", err)
		}
		sa.keyFile = encoded
	default:
		return nil, fmt.Errorf("unsupported credential type %q", sa.Type)
	}
	return &sa, nil
}

// FCMError is a non-2xx response from the send endpoint.
type FCMError struct {
	StatusCode int
	Body       string
}

func (e *FCMError) Error() string {
	return fmt.Sprintf("fcm: status %d: %s", e.StatusCode, e.Body)
}

// FCMSender delivers messages through the FCM HTTP v1 API. Requests are
// authorized by an oauth2 client that exchanges the service account key for
// cached, auto-refreshed access tokens.
type FCMSender struct {
	projectID string
	base      *http.Client
	timeout   time.Duration
	endpoint  string
	client    *http.Client
}

type FCMOption func(*FCMSender)

// WithHTTPClient sets the client used both for the token exchange and as the
// transport underneath the authorized client.
func WithHTTPClient(c *http.Client) FCMOption {
	return func(s *FCMSender) {
		if c != nil {
			s.base = c
		}
	}
}

// WithEndpoint overrides the FCM base URL.
func WithEndpoint(endpoint string) FCMOption {
	return func(s *FCMSender) {
		if endpoint != "" {
			s.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithProjectID overrides the project from the key file.
func WithProjectID(projectID string) FCMOption {
	return func(s *FCMSender) {
		if projectID != "" {
			s.projectID = projectID
		}
	}
}

func WithRequestTimeout(d time.Duration) FCMOption {
	return func(s *FCMSender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewFCMSender builds the authorized client. ctx bounds token refreshes for
// the lifetime of the sender.
func NewFCMSender(ctx context.Context, account *ServiceAccount, opts ...FCMOption) (*FCMSender, error) {
	s := &FCMSender{
		projectID: account.ProjectID,
		timeout:   15 * time.Second,
		endpoint:  fcmDefaultEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.projectID == "" {
		return nil, errors.New("fcm project id is required")
	}

	cfg, err := google.JWTConfigFromJSON(account.keyFile, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("load service account credentials: %w", err)
	}
	if s.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.base)
	}
	s.client = oauth2.NewClient(ctx, cfg.TokenSource(ctx))
	s.client.Timeout = s.timeout
	return s, nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

// Send posts msg and returns the FCM message name.
func (s *FCMSender) Send(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}})
	if err != nil {
		return "", fmt.Errorf("encode fcm message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.endpoint, url.PathEscape(s.projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fcm send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", readFCMError(resp)
	}
	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode fcm response: %w", err)
	}
	return out.Name, nil
}

func readFCMError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &FCMError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
