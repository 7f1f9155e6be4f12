package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"guardian/internal/types"
)

const (
	// ActorHeader optionally names the operator behind an admin request. It
	// is recorded as acknowledged_by on warnings.
	ActorHeader = "X-Actor-ID"

	bearerScheme        = "bearer"
	defaultAdminActorID = "admin"
	adminActorSource    = "admin_console"
	maxActorIDLength    = 128
)

// AdminKeyAuthenticator accepts a single shared admin API key, checked
// against its bcrypt hash.
type AdminKeyAuthenticator struct {
	keyHash []byte
}

// NewAdminKeyAuthenticator rejects anything that is not a bcrypt hash, so a
// plaintext key pasted into ADMIN_API_KEY_HASH fails at startup.
func NewAdminKeyAuthenticator(keyHash string) (*AdminKeyAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
		return nil, errors.New("admin api key hash is not a valid bcrypt hash")
	}
	return &AdminKeyAuthenticator{keyHash: []byte(keyHash)}, nil
}

// ResolveToken checks token against the hash. A usable actorHint becomes the
// actor ID; otherwise the actor is "admin".
func (a *AdminKeyAuthenticator) ResolveToken(_ context.Context, token string, actorHint string) (*types.Actor, error) {
	if bcrypt.CompareHashAndPassword(a.keyHash, []byte(token)) != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid admin API key", nil)
	}

	id := strings.TrimSpace(actorHint)
	if id == "" || len(id) > maxActorIDLength {
		id = defaultAdminActorID
	}
	return &types.Actor{ID: id, Type: types.ActorTypeAdmin, Source: adminActorSource}, nil
}

// AuthMiddleware admits requests carrying a valid bearer token and stores
// the resolved actor in the request context. Everything else gets a 401.
// A server without an Authenticator admits nothing.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, authErr := s.authenticate(r)
		if authErr != nil {
			JSON(w, r, http.StatusUnauthorized, errorBody(r, authErr.Code, authErr.Message, nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

func (s *Server) authenticate(r *http.Request) (*types.Actor, *types.AppError) {
	if s.Authenticator == nil {
		s.Logger.Error("admin request rejected: no authenticator configured", slog.String("path", r.URL.Path))
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Authentication is not configured", nil)
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authorization header is required", nil)
	}
	token, ok := bearerToken(header)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil)
	}

	actor, err := s.Authenticator.ResolveToken(r.Context(), token, r.Header.Get(ActorHeader))
	switch {
	case err == nil && actor != nil:
		return actor, nil
	case err == nil, types.HasCode(err, types.ErrCodeAuthTokenInvalid):
		s.Logger.Warn("admin token rejected", slog.String("method", r.Method), slog.String("path", r.URL.Path))
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil)
	default:
		// The cause stays in the log; the client only learns that auth failed.
		s.Logger.Error("admin token resolution failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Authentication failed", nil)
	}
}

// bearerToken extracts the credentials of a "Bearer" Authorization header.
// The scheme is case-insensitive (RFC 7235).
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
