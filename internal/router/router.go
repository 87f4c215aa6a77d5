// Package router wires the HTTP surface of the shortener: account
// registration and token issuance, link management and the redirect
// endpoint. Handlers translate the service sentinel errors into HTTP
// status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/undefined7887/shortlink/internal/auth"
	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/logger"
	"github.com/undefined7887/shortlink/internal/models"
)

type linkService interface {
	ShortenLink(ctx context.Context, ownerID, url, alias string, expireAt time.Time) (*link.Link, error)

	ResolveLink(ctx context.Context, linkID string) (string, error)

	GetLinkStats(ctx context.Context, linkID, ownerID string) (*link.Link, error)

	ListLinks(ctx context.Context, ownerID string) ([]link.Link, error)

	SearchLinks(ctx context.Context, ownerID, substring string) ([]link.Link, error)

	UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error

	DeleteLink(ctx context.Context, linkID, ownerID string) error

	RegisterUser(ctx context.Context, nickname, password string) (string, error)

	AuthenticateUser(ctx context.Context, nickname, password string) (string, error)

	Ping(ctx context.Context) error
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler

	RequireUser(h http.Handler) http.Handler

	BuildToken(userID string) (string, error)
}

// Router holds the handler dependencies.
type Router struct {
	service  linkService
	auth     authenticator
	validate *validator.Validate
}

// New builds the chi mux with every route and middleware attached.
func New(service linkService, authHandler authenticator) *chi.Mux {
	r := &Router{
		service:  service,
		auth:     authHandler,
		validate: validator.New(),
	}

	mux := chi.NewRouter()
	mux.Use(logger.WithLoggingHTTPMiddleware)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Compress(5, "application/json", "text/html"))
	mux.Use(authHandler.AuthenticateUser)

	mux.Post(`/auth/register`, r.PostAuthRegister)
	mux.Post(`/auth/token`, r.PostAuthToken)

	mux.Post(`/links/shorten`, r.PostLinksShorten)
	mux.Get(`/links/{linkID}`, r.GetLinksRedirect)
	mux.Get(`/ping`, r.GetPing)

	mux.Group(func(protected chi.Router) {
		protected.Use(authHandler.RequireUser)
		protected.Get(`/links`, r.GetLinksList)
		protected.Get(`/links/search`, r.GetLinksSearch)
		protected.Get(`/links/{linkID}/stats`, r.GetLinksStats)
		protected.Put(`/links/{linkID}`, r.PutLinksUpdate)
		protected.Delete(`/links/{linkID}`, r.DeleteLinksDelete)
	})

	return mux
}

// PostAuthRegister creates an account from a nickname/password pair.
func (r *Router) PostAuthRegister(response http.ResponseWriter, request *http.Request) {
	var registerRequest models.RegisterRequest
	if !r.decodeAndValidate(response, request, &registerRequest) {
		return
	}

	userID, err := r.service.RegisterUser(request.Context(), registerRequest.Username, registerRequest.Password)
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, models.RegisterResponse{ID: userID})
}

// PostAuthToken verifies credentials and issues a bearer token.
func (r *Router) PostAuthToken(response http.ResponseWriter, request *http.Request) {
	var tokenRequest models.TokenRequest
	if !r.decodeAndValidate(response, request, &tokenRequest) {
		return
	}

	userID, err := r.service.AuthenticateUser(request.Context(), tokenRequest.Username, tokenRequest.Password)
	if err != nil {
		r.writeError(response, err)

		return
	}

	accessToken, err := r.auth.BuildToken(userID)
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, models.TokenResponse{AccessToken: accessToken})
}

// PostLinksShorten creates a link. The request may be anonymous; with a valid
// bearer token the link is attributed to the caller.
func (r *Router) PostLinksShorten(response http.ResponseWriter, request *http.Request) {
	var shortenRequest models.ShortenRequest
	if !r.decodeAndValidate(response, request, &shortenRequest) {
		return
	}

	ownerID, _ := auth.UserIDFromContext(request.Context())

	lnk, err := r.service.ShortenLink(
		request.Context(),
		ownerID,
		shortenRequest.URL,
		shortenRequest.Alias,
		shortenRequest.ExpireAt,
	)
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, models.ShortenResponse{ID: lnk.ID})
}

// GetLinksRedirect resolves a short code and redirects to the destination.
func (r *Router) GetLinksRedirect(response http.ResponseWriter, request *http.Request) {
	linkID := chi.URLParam(request, "linkID")

	destination, err := r.service.ResolveLink(request.Context(), linkID)
	if err != nil {
		r.writeError(response, err)

		return
	}

	http.Redirect(response, request, destination, http.StatusMovedPermanently)
}

// GetLinksList returns every link of the authenticated user.
func (r *Router) GetLinksList(response http.ResponseWriter, request *http.Request) {
	ownerID, _ := auth.UserIDFromContext(request.Context())

	links, err := r.service.ListLinks(request.Context(), ownerID)
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, linksToResponse(links))
}

// GetLinksSearch returns the user's links filtered by a destination substring.
func (r *Router) GetLinksSearch(response http.ResponseWriter, request *http.Request) {
	ownerID, _ := auth.UserIDFromContext(request.Context())

	links, err := r.service.SearchLinks(request.Context(), ownerID, request.URL.Query().Get("original_url"))
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, linksToResponse(links))
}

// GetLinksStats returns the link record with access statistics to its owner.
func (r *Router) GetLinksStats(response http.ResponseWriter, request *http.Request) {
	ownerID, _ := auth.UserIDFromContext(request.Context())
	linkID := chi.URLParam(request, "linkID")

	lnk, err := r.service.GetLinkStats(request.Context(), linkID, ownerID)
	if err != nil {
		r.writeError(response, err)

		return
	}

	r.writeJSON(response, http.StatusOK, linkToDTO(*lnk))
}

// PutLinksUpdate changes the destination URL of the owner's link.
func (r *Router) PutLinksUpdate(response http.ResponseWriter, request *http.Request) {
	ownerID, _ := auth.UserIDFromContext(request.Context())
	linkID := chi.URLParam(request, "linkID")

	var updateRequest models.UpdateLinkRequest
	if !r.decodeAndValidate(response, request, &updateRequest) {
		return
	}

	if err := r.service.UpdateLinkURL(request.Context(), linkID, ownerID, updateRequest.URL); err != nil {
		r.writeError(response, err)

		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// DeleteLinksDelete removes the owner's link.
func (r *Router) DeleteLinksDelete(response http.ResponseWriter, request *http.Request) {
	ownerID, _ := auth.UserIDFromContext(request.Context())
	linkID := chi.URLParam(request, "linkID")

	if err := r.service.DeleteLink(request.Context(), linkID, ownerID); err != nil {
		r.writeError(response, err)

		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetPing reports storage health.
func (r *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := r.service.Ping(request.Context()); err != nil {
		r.writeError(response, err)

		return
	}

	response.WriteHeader(http.StatusOK)
}

func (r *Router) decodeAndValidate(response http.ResponseWriter, request *http.Request, target any) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		http.Error(response, "malformed request body", http.StatusBadRequest)

		return false
	}

	if err := r.validate.Struct(target); err != nil {
		http.Error(response, err.Error(), http.StatusBadRequest)

		return false
	}

	return true
}

func (r *Router) writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error encoding the response: ", zap.Error(err))
	}
}

func (r *Router) writeError(response http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		http.Error(response, err.Error(), http.StatusBadRequest)

	case errors.Is(err, models.ErrAuth):
		http.Error(response, "incorrect username or password", http.StatusUnauthorized)

	case errors.Is(err, models.ErrConflict):
		http.Error(response, err.Error(), http.StatusConflict)

	case errors.Is(err, models.ErrNotFound):
		http.Error(response, "link not found", http.StatusNotFound)

	default:
		logger.Log.Debugln("Internal error: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
	}
}

func linkToDTO(lnk link.Link) models.LinkDTO {
	return models.LinkDTO{
		ID:           lnk.ID,
		URL:          lnk.URL,
		AccessCount:  lnk.AccessCount,
		LastAccessAt: lnk.LastAccessAt,
		CreatedAt:    lnk.CreatedAt,
		UpdatedAt:    lnk.UpdatedAt,
		ExpireAt:     lnk.ExpireAt,
	}
}

func linksToResponse(links []link.Link) models.LinksListResponse {
	result := models.LinksListResponse{
		Links: make([]models.LinkDTO, 0, len(links)),
	}
	for _, lnk := range links {
		result.Links = append(result.Links, linkToDTO(lnk))
	}

	return result
}
