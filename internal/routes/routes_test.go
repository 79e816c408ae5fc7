package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/blob"
	"github.com/cinelog/catalog-api/internal/catalog"
	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/events"
	"github.com/cinelog/catalog-api/internal/middleware"
	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store/memory"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// countingBlobs counts every call that reaches the blob store.
type countingBlobs struct {
	*blob.Memory
	gets atomic.Int32
}

func (b *countingBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.gets.Add(1)
	return b.Memory.Get(ctx, key)
}

type testServer struct {
	app   *fiber.App
	repo  *memory.Repository
	blobs *countingBlobs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Session:       config.SessionConfig{CookieLifetime: session.CookieLifetime},
		Redis:         config.RedisConfig{IdempotencyTTL: time.Minute},
		RateLimit:     config.RateLimitConfig{Enabled: false},
		Observability: config.ObservabilityConfig{MetricsPath: "/metrics"},
	}

	repo := memory.New()
	st := repo.Store()
	blobs := &countingBlobs{Memory: blob.NewMemory()}
	guarded := blob.NewBreaker(blobs, logger)
	codec := session.NewCodec(cfg.Session.SigningSecret, cfg.Session.CookieLifetime)
	guard := auth.NewGuard(st.Users, codec)

	mw := middleware.NewManagerWithClient(cfg, guard, nil, logger)
	t.Cleanup(func() { _ = mw.Close() })

	app := fiber.New()
	Setup(app, Dependencies{
		Config:     cfg,
		Logger:     logger,
		Middleware: mw,
		Store:      st,
		Blobs:      guarded,
		Codec:      codec,
		Accounts:   auth.NewAccounts(st.Users, codec, logger, auth.WithHashCost(bcrypt.MinCost)),
		Writer:     catalog.NewWriter(st.Users, st.Movies, guarded, events.Nop{}, logger),
		Reader:     catalog.NewReader(st.Movies),
	})

	return &testServer{app: app, repo: repo, blobs: blobs}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func sessionCookies(t *testing.T, resp *http.Response) []*http.Cookie {
	t.Helper()
	var out []*http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CookieUsername || c.Name == middleware.CookieToken {
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	require.Len(t, out, 2)
	return out
}

func TestAliceScenario(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"redirectPath":"/movies"}`, body)

	for _, c := range resp.Cookies() {
		assert.Equal(t, "/", c.Path)
		assert.WithinDuration(t, time.Now().Add(session.CookieLifetime), c.Expires, time.Minute)
	}
	cookies := sessionCookies(t, resp)

	resp, body = s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T","author":"A","image":[137,80,78,71]}`, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"message":"Movie added"}`, body)

	resp, body = s.do(t, http.MethodGet, "/api/movies", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.MovieView
	require.NoError(t, json.Unmarshal([]byte(body), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "T", all[0].Title)
	assert.Equal(t, "A", all[0].Author)
	assert.Zero(t, all[0].AvgRating)
	assert.Zero(t, all[0].NumRatings)
	assert.NotEmpty(t, all[0].ID)
	assert.NotEmpty(t, all[0].ImageURL)

	var token *http.Cookie
	for _, c := range cookies {
		if c.Name == middleware.CookieToken {
			token = c
		}
	}
	resp, body = s.do(t, http.MethodGet, "/api/movies/alice", "", token)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var owned []models.MovieView
	require.NoError(t, json.Unmarshal([]byte(body), &owned))
	require.Len(t, owned, 1)
	assert.Equal(t, all[0], owned[0])

	resp, body = s.do(t, http.MethodGet, "/api/thumbnail/"+all[0].ImageURL, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[137,80,78,71]", body)
}

func TestRegisterLoginSameToken(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p1"}`)
	registered := sessionCookies(t, resp)

	resp, body := s.do(t, http.MethodPost, "/api/login", `{"name":"alice","password":"p1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.ElementsMatch(t, registered, sessionCookies(t, resp))

	resp, body = s.do(t, http.MethodPost, "/api/login", `{"name":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Wrong username or password"}`, body)

	resp, body = s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p2"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Username already exists"}`, body)

	resp, _ = s.do(t, http.MethodPost, "/api/login", `{"name":"alice","password":"p1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "original password still works")

	resp, _ = s.do(t, http.MethodPost, "/api/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateMovie_Errors(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T","author":"A","image":[1]}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, body)

	resp, _ = s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p1"}`)
	cookies := sessionCookies(t, resp)

	resp, _ = s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T","author":"A","image":[1]}`, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T","author":"A","image":[2]}`, cookies...)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Movie already exists"}`, body)
	assert.Equal(t, 1, s.repo.MovieCount())
	assert.Equal(t, 1, s.blobs.Len())

	resp, _ = s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T2","author":"A","image":[300]}`, cookies...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	wrong := []*http.Cookie{
		{Name: middleware.CookieUsername, Value: "alice"},
		{Name: middleware.CookieToken, Value: "forged"},
	}
	resp, body = s.do(t, http.MethodPost, "/api/add-movie", `{"title":"T3","author":"A","image":[1]}`, wrong...)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, body)
}

func TestListByOwner_Unauthorized(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p1"}`)
	cookies := sessionCookies(t, resp)
	resp, _ = s.do(t, http.MethodPost, "/api/users", `{"name":"bob","password":"p2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var aliceToken *http.Cookie
	for _, c := range cookies {
		if c.Name == middleware.CookieToken {
			aliceToken = c
		}
	}

	resp, body := s.do(t, http.MethodGet, "/api/movies/bob", "", aliceToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, body)

	resp, body = s.do(t, http.MethodGet, "/api/movies/alice", "", aliceToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
}

func TestThumbnail(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/thumbnail/", "/api/thumbnail"} {
		resp, _ := s.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	assert.Zero(t, s.blobs.gets.Load(), "empty key must not reach the blob store")

	resp, body := s.do(t, http.MethodGet, "/api/thumbnail/missing.png", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)
}

func TestDeleteStubAndLogout(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodDelete, "/api/movies", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/users", `{"name":"alice","password":"p1"}`)
	cookies := sessionCookies(t, resp)

	resp, body := s.do(t, http.MethodDelete, "/api/movies", "", cookies...)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)

	resp, body = s.do(t, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = s.do(t, http.MethodPost, "/logout", "",
		&http.Cookie{Name: "uuid", Value: "x"}, &http.Cookie{Name: middleware.CookieUsername, Value: "alice"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, body)
	var ready struct {
		Status      string                 `json:"status"`
		BlobBreaker map[string]interface{} `json:"blob_breaker"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "CLOSED", ready.BlobBreaker["state"])

	resp, body = s.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"service":"catalog-api"`)

	resp, body = s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)
}
