package push

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/oauth2"
)

// tokenResponse is what Google's token endpoint returns for a JWT bearer grant.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type FCMSenderSuite struct {
	suite.Suite
	key        *rsa.PrivateKey
	server     *httptest.Server
	account    *ServiceAccount
	tokenCalls atomic.Int32
	sendCalls  atomic.Int32

	mu          sync.Mutex
	sendStatus  int
	tokenStatus int
	tokenTTL    int64
	lastMessage fcmRequest
	lastAuth    string
}

func (s *FCMSenderSuite) configure(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *FCMSenderSuite) last() (string, fcmRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth, s.lastMessage
}

func TestFCMSenderSuite(t *testing.T) {
	suite.Run(t, new(FCMSenderSuite))
}

func (s *FCMSenderSuite) SetupTest() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.key = key
	s.sendStatus = http.StatusOK
	s.tokenStatus = http.StatusOK
	s.tokenTTL = 3600
	s.tokenCalls.Store(0)
	s.sendCalls.Store(0)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("POST /v1/projects/demo-project/messages:send", s.handleSend)
	s.server = httptest.NewServer(mux)
	s.T().Cleanup(s.server.Close)

	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	keyFile, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "demo-project",
		"private_key_id": "kid-1",
		"private_key":    string(pemKey),
		"client_email":   "pushgate@demo-project.iam.gserviceaccount.com",
		"token_uri":      s.server.URL + "/token",
	})
	s.Require().NoError(err)
	s.account, err = ParseServiceAccount(string(keyFile))
	s.Require().NoError(err)
}

func (s *FCMSenderSuite) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)
	s.mu.Lock()
	status, ttl := s.tokenStatus, s.tokenTTL
	s.mu.Unlock()
	if status != http.StatusOK {
		http.Error(w, `{"error":"invalid_grant"}`, status)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		http.Error(w, "bad grant", http.StatusBadRequest)
		return
	}
	tok, err := jwt.Parse(r.PostForm.Get("assertion"), func(*jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || tok.Header["kid"] != "kid-1" {
		http.Error(w, "bad assertion", http.StatusUnauthorized)
		return
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["scope"] != fcmScope || claims["iss"] != s.account.ClientEmail {
		http.Error(w, "bad claims", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-1", ExpiresIn: ttl, TokenType: "Bearer"})
}

func (s *FCMSenderSuite) handleSend(w http.ResponseWriter, r *http.Request) {
	s.sendCalls.Add(1)
	var req fcmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.lastAuth = r.Header.Get("Authorization")
	s.lastMessage = req
	status := s.sendStatus
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"status":"UNREGISTERED"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(fcmResponse{Name: "projects/demo-project/messages/0:123"})
}

func (s *FCMSenderSuite) newSender() *FCMSender {
	sender, err := NewFCMSender(context.Background(), s.account,
		WithEndpoint(s.server.URL),
		WithHTTPClient(s.server.Client()),
	)
	s.Require().NoError(err)
	return sender
}

func (s *FCMSenderSuite) TestSendDeliversMessage() {
	sender := s.newSender()

	id, err := sender.Send(context.Background(), NewLoginRequest("device-token", "T1"))
	s.Require().NoError(err)

	auth, sent := s.last()
	s.Equal("projects/demo-project/messages/0:123", id)
	s.Equal("Bearer access-1", auth)
	s.Equal("device-token", sent.Message.Token)
	s.Equal("Login Request", sent.Message.Notification.Title)
	s.Equal("T1", sent.Message.Data["transactionId"])
}

func (s *FCMSenderSuite) TestAccessTokenIsReused() {
	sender := s.newSender()
	ctx := context.Background()

	_, err := sender.Send(ctx, NewLoginRequest("tok", "T1"))
	s.Require().NoError(err)
	_, err = sender.Send(ctx, NewLoginRequest("tok", "T2"))
	s.Require().NoError(err)

	s.Equal(int32(1), s.tokenCalls.Load())
	s.Equal(int32(2), s.sendCalls.Load())
}

func (s *FCMSenderSuite) TestExpiringTokenIsRefreshed() {
	// Tokens this close to expiry are treated as already expired.
	s.configure(func() { s.tokenTTL = 5 })
	sender := s.newSender()
	ctx := context.Background()

	_, err := sender.Send(ctx, NewLoginRequest("tok", "T1"))
	s.Require().NoError(err)
	_, err = sender.Send(ctx, NewLoginRequest("tok", "T2"))
	s.Require().NoError(err)

	s.Equal(int32(2), s.tokenCalls.Load())
}

func (s *FCMSenderSuite) TestProviderErrorIsReturned() {
	s.configure(func() { s.sendStatus = http.StatusNotFound })
	sender := s.newSender()

	_, err := sender.Send(context.Background(), NewLoginRequest("stale-token", "T1"))

	var fcmErr *FCMError
	s.Require().ErrorAs(err, &fcmErr)
	s.Equal(http.StatusNotFound, fcmErr.StatusCode)
	s.Contains(fcmErr.Body, "UNREGISTERED")
}

func (s *FCMSenderSuite) TestTokenExchangeFailureSkipsSend() {
	s.configure(func() { s.tokenStatus = http.StatusBadRequest })
	sender := s.newSender()

	_, err := sender.Send(context.Background(), NewLoginRequest("tok", "T1"))

	var retrieveErr *oauth2.RetrieveError
	s.Require().ErrorAs(err, &retrieveErr)
	s.Equal(int32(0), s.sendCalls.Load())
}

func TestParseServiceAccount(t *testing.T) {
	raw := `{"project_id":"p","private_key":"k","client_email":"svc@p.iam.gserviceaccount.com"}`

	t.Run("raw json without type", func(t *testing.T) {
		sa, err := ParseServiceAccount(raw)
		require.NoError(t, err)
		assert.Equal(t, "p", sa.ProjectID)
		assert.Equal(t, "service_account", sa.Type)
		assert.Contains(t, string(sa.keyFile), `"type":"service_account"`)
	})

	t.Run("base64 json", func(t *testing.T) {
		sa, err := ParseServiceAccount(base64.StdEncoding.EncodeToString([]byte(raw)))
		require.NoError(t, err)
		assert.Equal(t, "svc@p.iam.gserviceaccount.com", sa.ClientEmail)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := ParseServiceAccount(`{"client_email":"svc@p"}`)
		require.Error(t, err)
	})

	t.Run("other credential type", func(t *testing.T) {
		_, err := ParseServiceAccount(`{"type":"authorized_user","private_key":"k","client_email":"svc@p"}`)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseServiceAccount("%%%")
		require.Error(t, err)
	})
}

func TestNewFCMSender_RequiresProject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	keyFile, err := json.Marshal(map[string]string{"private_key": string(pemKey), "client_email": "svc@p"})
	require.NoError(t, err)
	account, err := ParseServiceAccount(string(keyFile))
	require.NoError(t, err)

	_, err = NewFCMSender(context.Background(), account)
	require.Error(t, err)

	sender, err := NewFCMSender(context.Background(), account, WithProjectID("override"))
	require.NoError(t, err)
	assert.Equal(t, "override", sender.projectID)
}
