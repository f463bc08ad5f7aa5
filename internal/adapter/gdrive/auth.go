package gdrive

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// DefaultTokenFile is the token file name under the user config dir
const DefaultTokenFile = "gdrive-token.json"

// Authenticator runs the OAuth2 flow for Google Drive and keeps the token on disk
type Authenticator struct {
	config    *oauth2.Config
	tokenPath string
	in        io.Reader
	out       io.Writer
}

// NewAuthenticator creates an authenticator storing its token at tokenPath
// (default: <user config dir>/treeclean/gdrive-token.json)
func NewAuthenticator(clientID, clientSecret, tokenPath string) *Authenticator {
	if tokenPath == "" {
		tokenPath = DefaultTokenFile
		if configDir, err := os.UserConfigDir(); err == nil {
			tokenPath = filepath.Join(configDir, "treeclean", DefaultTokenFile)
		}
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{drive.DriveScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: tokenPath,
		in:        os.Stdin,
		out:       os.Stdout,
	}
}

// SetPrompt redirects the interactive flow, which reads the authorization
// code from in and writes instructions to out
func (a *Authenticator) SetPrompt(in io.Reader, out io.Writer) {
	a.in = in
	a.out = out
}

// TokenSource returns a source that refreshes the stored token as needed and
// writes every refreshed token back to disk
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := a.loadToken()
	if err != nil {
		return nil, fmt.Errorf("no usable token at %s, run 'treeclean auth gdrive <transport>' first: %w", a.tokenPath, err)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, fmt.Errorf("token at %s expired, run 'treeclean auth gdrive <transport>' again", a.tokenPath)
	}

	return &persistingTokenSource{
		base: a.config.TokenSource(ctx, token),
		auth: a,
		last: token.AccessToken,
	}, nil
}

// persistingTokenSource saves tokens whose access token changed
type persistingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	auth *Authenticator
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if token.AccessToken != s.last {
		if err := s.auth.saveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		s.last = token.AccessToken
	}
	return token, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Authenticate runs the authorization code flow: it prints the consent URL,
// reads the code the user pastes and stores the resulting token
func (a *Authenticator) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.out, "Open the following URL, allow access to Google Drive and paste the code below:\n\n  %s\n\nCode: ", authURL)

	code, err := bufio.NewReader(a.in).ReadString('\n')
	code = strings.TrimSpace(code)
	if code == "" {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	if err := a.saveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("invalid token file: no access or refresh token")
	}
	return &token, nil
}

// saveToken writes the token with owner-only permissions via temp file + rename
func (a *Authenticator) saveToken(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	tmp := a.tokenPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := os.Rename(tmp, a.tokenPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename token file: %w", err)
	}
	return nil
}

// TokenPath returns the path where the token is stored
func (a *Authenticator) TokenPath() string {
	return a.tokenPath
}

// Config returns the OAuth2 config
func (a *Authenticator) Config() *oauth2.Config {
	return a.config
}
