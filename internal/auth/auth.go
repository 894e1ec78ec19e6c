// Package auth obtains OAuth2 tokens for the Sheets API.
//
// The consent flow is out of band: AuthCodeURL gives the user a link, the
// user pastes back the code, Exchange trades it for a token and stores it.
// Later runs build a refreshing token source from the stored token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("no stored token, run the authorization flow first")

// DefaultScopes grant read access to spreadsheets.
var DefaultScopes = []string{sheetsapi.SpreadsheetsReadonlyScope}

// LoadConfig reads an OAuth client file downloaded from Google Cloud.
// Scopes default to DefaultScopes.
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", credentialsFile, err)
	}
	return cfg, nil
}

// Authorizer runs the consent flow and manages the stored token.
type Authorizer struct {
	cfg       *oauth2.Config
	tokenFile string
}

// New returns an Authorizer storing its token in tokenFile.
func New(cfg *oauth2.Config, tokenFile string) *Authorizer {
	return &Authorizer{cfg: cfg, tokenFile: tokenFile}
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// the stored token can be refreshed without the user.
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := SaveToken(a.tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource returns a source that refreshes the stored token as needed
// and writes refreshed tokens back to the token file.
func (a *Authorizer) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := LoadToken(a.tokenFile)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		src:  a.cfg.TokenSource(ctx, tok),
		path: a.tokenFile,
		last: tok.AccessToken,
	}, nil
}

// StaticTokenSource wraps a pre-obtained access token. It is never refreshed.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path, readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// persistingSource saves every newly issued token.
type persistingSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := SaveToken(p.path, tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
