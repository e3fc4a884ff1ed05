package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/codebuddy/apiserver/config"
)

// Identity is a verified external identity delivered by an OAuth
// provider.
type Identity struct {
	ProviderID string
	Email      string
	Name       string
}

// GoogleVerifier is the optional OAuth capability object. A nil
// verifier means the provider is not configured and the OAuth routes
// answer 503.
type GoogleVerifier struct {
	oauth *oauth2.Config
}

// NewGoogleVerifier builds the capability from config, or returns nil
// when credentials are absent.
func NewGoogleVerifier(cfg config.GoogleConfig) *GoogleVerifier {
	if !cfg.Enabled() {
		return nil
	}
	return &GoogleVerifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthCodeURL returns the provider consent URL carrying the state.
func (g *GoogleVerifier) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades the callback code for tokens and fetches the
// verified identity from the userinfo endpoint.
func (g *GoogleVerifier) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchanging oauth code: %w", err)
	}

	service, err := oauth2api.NewService(ctx, option.WithTokenSource(g.oauth.TokenSource(ctx, token)))
	if err != nil {
		return Identity{}, fmt.Errorf("building userinfo client: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Id == "" || info.Email == "" {
		return Identity{}, errors.New("userinfo response missing id or email")
	}

	return Identity{
		ProviderID: info.Id,
		Email:      info.Email,
		Name:       info.Name,
	}, nil
}
