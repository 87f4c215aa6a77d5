package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undefined7887/shortlink/internal/auth"
	"github.com/undefined7887/shortlink/internal/db/memorycache"
	"github.com/undefined7887/shortlink/internal/db/memorystorage"
	"github.com/undefined7887/shortlink/internal/keygen"
	"github.com/undefined7887/shortlink/internal/logger"
	"github.com/undefined7887/shortlink/internal/models"
	"github.com/undefined7887/shortlink/internal/service"
)

func TestMain(m *testing.M) {
	if err := logger.Init("debug"); err != nil {
		panic(err)
	}
	m.Run()
}

// directRecorder applies every access synchronously, so handlers' effects are
// visible to the next request without waiting for a flush.
type directRecorder struct {
	db *memorystorage.MemoryStorage
}

func (r *directRecorder) Enqueue(linkID string, accessedAt time.Time) {
	_ = r.db.RecordAccess(context.Background(), linkID, 1, accessedAt)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	shortenerService := service.New(
		db,
		memorycache.New(),
		&directRecorder{db: db},
		keygen.New(keygen.DefaultLength),
	)
	authHandler := auth.New([]byte("test-signing-key"), time.Hour)

	server := httptest.NewServer(New(shortenerService, authHandler))
	t.Cleanup(server.Close)

	return server
}

func newTestClient(server *httptest.Server) *resty.Client {
	return resty.New().
		SetBaseURL(server.URL).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}))
}

func registerAndGetToken(t *testing.T, client *resty.Client, username, password string) string {
	t.Helper()

	response, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.RegisterRequest{Username: username, Password: password}).
		Post("/auth/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode())

	response, err = client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.TokenRequest{Username: username, Password: password}).
		Post("/auth/token")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode())

	var tokenResponse models.TokenResponse
	require.NoError(t, json.Unmarshal(response.Body(), &tokenResponse))
	require.NotEmpty(t, tokenResponse.AccessToken)

	return tokenResponse.AccessToken
}

func shorten(
	t *testing.T,
	client *resty.Client,
	token string,
	body models.ShortenRequest,
) (*resty.Response, string) {
	t.Helper()

	request := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if token != "" {
		request.SetAuthToken(token)
	}

	response, err := request.Post("/links/shorten")
	require.NoError(t, err)

	var shortenResponse models.ShortenResponse
	if response.StatusCode() == http.StatusOK {
		require.NoError(t, json.Unmarshal(response.Body(), &shortenResponse))
	}

	return response, shortenResponse.ID
}

func TestLinkLifecycle(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	token := registerAndGetToken(t, client, "alice", "secret")

	response, linkID := shorten(t, client, token, models.ShortenRequest{
		URL:      "https://example.com/page",
		ExpireAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusOK, response.StatusCode())
	require.Len(t, linkID, keygen.DefaultLength)

	// The redirect is public and counts an access.
	response, err := client.R().Get("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, response.StatusCode())
	assert.Equal(t, "https://example.com/page", response.Header().Get("Location"))

	response, err = client.R().SetAuthToken(token).Get("/links/" + linkID + "/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode())

	var stats models.LinkDTO
	require.NoError(t, json.Unmarshal(response.Body(), &stats))
	assert.Equal(t, linkID, stats.ID)
	assert.Equal(t, int64(1), stats.AccessCount)
	require.NotNil(t, stats.LastAccessAt)

	// Updating the destination changes where the next redirect lands.
	response, err = client.R().
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(models.UpdateLinkRequest{URL: "https://example.com/moved"}).
		Put("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, response.StatusCode())

	response, err = client.R().Get("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, response.StatusCode())
	assert.Equal(t, "https://example.com/moved", response.Header().Get("Location"))

	// Deletion makes both the redirect and the stats disappear.
	response, err = client.R().SetAuthToken(token).Delete("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, response.StatusCode())

	response, err = client.R().Get("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())

	response, err = client.R().SetAuthToken(token).Get("/links/" + linkID + "/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())
}

func TestShortenWithAlias(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	response, linkID := shorten(t, client, "", models.ShortenRequest{
		URL:      "https://example.com",
		ExpireAt: time.Now().Add(time.Hour),
		Alias:    "my-page",
	})
	require.Equal(t, http.StatusOK, response.StatusCode())
	assert.Equal(t, "my-page", linkID)

	// The alias is taken now, the second request fails without retrying.
	response, _ = shorten(t, client, "", models.ShortenRequest{
		URL:      "https://elsewhere.example.com",
		ExpireAt: time.Now().Add(time.Hour),
		Alias:    "my-page",
	})
	assert.Equal(t, http.StatusConflict, response.StatusCode())
}

func TestShortenValidation(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	tests := []struct {
		name string
		body any
	}{
		{
			name: "missing url",
			body: models.ShortenRequest{ExpireAt: time.Now().Add(time.Hour)},
		},
		{
			name: "missing expire_at",
			body: models.ShortenRequest{URL: "https://example.com"},
		},
		{
			name: "expire_at in the past",
			body: models.ShortenRequest{
				URL:      "https://example.com",
				ExpireAt: time.Now().Add(-time.Minute),
			},
		},
		{
			name: "malformed body",
			body: "{not json",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response, err := client.R().
				SetHeader("Content-Type", "application/json").
				SetBody(test.body).
				Post("/links/shorten")
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, response.StatusCode())
		})
	}
}

func TestAnonymousRedirectAndOwnership(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	// An anonymous link resolves, but has no owner to read its stats.
	response, linkID := shorten(t, client, "", models.ShortenRequest{
		URL:      "https://example.com",
		ExpireAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusOK, response.StatusCode())

	response, err := client.R().Get("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, response.StatusCode())

	strangerToken := registerAndGetToken(t, client, "stranger", "secret")

	// A non-owner cannot see, update or delete the link.
	response, err = client.R().SetAuthToken(strangerToken).Get("/links/" + linkID + "/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())

	response, err = client.R().
		SetAuthToken(strangerToken).
		SetHeader("Content-Type", "application/json").
		SetBody(models.UpdateLinkRequest{URL: "https://hijack.example.com"}).
		Put("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())

	response, err = client.R().SetAuthToken(strangerToken).Delete("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	tests := []struct {
		method string
		path   string
	}{
		{method: http.MethodGet, path: "/links"},
		{method: http.MethodGet, path: "/links/search"},
		{method: http.MethodGet, path: "/links/abcde/stats"},
		{method: http.MethodPut, path: "/links/abcde"},
		{method: http.MethodDelete, path: "/links/abcde"},
	}
	for _, test := range tests {
		t.Run(test.method+" "+test.path, func(t *testing.T) {
			response, err := client.R().Execute(test.method, test.path)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, response.StatusCode())
		})
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	registerAndGetToken(t, client, "alice", "secret")

	tests := []struct {
		name string
		body models.TokenRequest
	}{
		{name: "wrong password", body: models.TokenRequest{Username: "alice", Password: "wrong"}},
		{name: "unknown user", body: models.TokenRequest{Username: "nobody", Password: "secret"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response, err := client.R().
				SetHeader("Content-Type", "application/json").
				SetBody(test.body).
				Post("/auth/token")
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, response.StatusCode())
		})
	}
}

func TestRegisterConflict(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	registerAndGetToken(t, client, "alice", "secret")

	response, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.RegisterRequest{Username: "alice", Password: "another"}).
		Post("/auth/register")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, response.StatusCode())
}

func TestListAndSearchLinks(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	token := registerAndGetToken(t, client, "alice", "secret")

	for _, url := range []string{"https://example.com/docs", "https://example.com/blog", "https://other.example.org"} {
		response, _ := shorten(t, client, token, models.ShortenRequest{
			URL:      url,
			ExpireAt: time.Now().Add(time.Hour),
		})
		require.Equal(t, http.StatusOK, response.StatusCode())
	}

	response, err := client.R().SetAuthToken(token).Get("/links")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode())

	var listing models.LinksListResponse
	require.NoError(t, json.Unmarshal(response.Body(), &listing))
	assert.Len(t, listing.Links, 3)

	response, err = client.R().
		SetAuthToken(token).
		SetQueryParam("original_url", "example.com/").
		Get("/links/search")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.StatusCode())

	var filtered models.LinksListResponse
	require.NoError(t, json.Unmarshal(response.Body(), &filtered))
	assert.Len(t, filtered.Links, 2)

	// An empty substring is rejected instead of returning everything.
	response, err = client.R().SetAuthToken(token).Get("/links/search")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode())
}

func TestExpiredLinkRedirect(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	token := registerAndGetToken(t, client, "alice", "secret")

	response, linkID := shorten(t, client, token, models.ShortenRequest{
		URL:      "https://example.com",
		ExpireAt: time.Now().Add(30 * time.Millisecond),
	})
	require.Equal(t, http.StatusOK, response.StatusCode())

	time.Sleep(50 * time.Millisecond)

	response, err := client.R().Get("/links/" + linkID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode())

	// The owner still sees the expired link's statistics.
	response, err = client.R().SetAuthToken(token).Get("/links/" + linkID + "/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode())
}

func TestPing(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(server)

	response, err := client.R().Get("/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode())
}
