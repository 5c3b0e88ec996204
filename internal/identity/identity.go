package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/internal/clients/line"
	"github.com/tazhate/holidaybot/internal/domain"
)

// Resolver maps a bearer credential to an owner id. Failures wrap
// domain.ErrUnauthorized.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, credential string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, credential string) (string, error) {
	return f(ctx, credential)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type lineAPI interface {
	GetProfile(ctx context.Context, accessToken string) (*line.Profile, error)
	VerifyIDToken(ctx context.Context, idToken string) (*line.IDTokenClaims, error)
}

// LINEResolver accepts either a LIFF access token or a LINE Login ID token.
type LINEResolver struct {
	api lineAPI
	log zerolog.Logger
}

func NewLINEResolver(api lineAPI, log zerolog.Logger) *LINEResolver {
	return &LINEResolver{api: api, log: log.With().Str("component", "identity").Logger()}
}

// Resolve tries the token as an access token first, then as an ID token.
func (r *LINEResolver) Resolve(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	profile, err := r.api.GetProfile(ctx, credential)
	if err == nil && profile.UserID != "" {
		return profile.UserID, nil
	}
	if err != nil {
		r.log.Debug().Err(err).Msg("profile lookup failed, trying id token")
	}

	claims, err := r.api.VerifyIDToken(ctx, credential)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: id token has no subject", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}
