package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource fetches and caches an app access token through the
// client-credentials grant. The cached token is reused until its recorded
// expiry, or until Invalidate is called after the API rejects it.
type TokenSource struct {
	cfg        clientcredentials.Config
	httpClient *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

func NewTokenSource(clientID, clientSecret, tokenURL string, httpClient *http.Client) *TokenSource {
	return &TokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
	}
}

// Token satisfies oauth2.TokenSource for the API transport.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.TokenContext(context.Background())
}

func (ts *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token.Valid() {
		return ts.token, nil
	}
	if ts.cfg.ClientID == "" || ts.cfg.ClientSecret == "" {
		return nil, errors.New("missing client id/secret for spotify app token")
	}
	if ts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.httpClient)
	}
	tok, err := ts.cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("spotify token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access_token in spotify response")
	}
	ts.token = tok
	return tok, nil
}

func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = nil
	ts.mu.Unlock()
}

// Cached reports the token currently held, valid or not.
func (ts *TokenSource) Cached() *oauth2.Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}
