package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"
)

const (
	// LocalhostAuthPort is the port the local web server listens on to
	// capture the OAuth redirect. It must match the redirect URI registered
	// for the client in the Google Cloud console.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// Scopes is what tasksync asks for: read and write access to Google Tasks.
var Scopes = []string{tasks.TasksScope}

// Paths locates the OAuth client secrets and the cached user token.
type Paths struct {
	CredentialsFile string
	TokenFile       string
}

// GetConfig creates an oauth2.Config from the client secrets file and scopes.
func GetConfig(credentialsFile string, scopes []string, logger *slog.Logger) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credentialsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL(config.RedirectURL, logger)
	return config, nil
}

// redirectURL forces loopback and out-of-band redirect URIs onto the port the
// local listener uses.
func redirectURL(configured string, logger *slog.Logger) string {
	if configured == "urn:ietf:wg:oauth:2.0:oob" || configured == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}

	parsed, err := url.Parse(configured)
	if err != nil {
		logger.Warn("could not parse redirect URL, using it as is", "url", configured, "error", err)
		return configured
	}
	if parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" {
		logger.Warn("redirect URL is not a localhost callback", "url", configured)
		return configured
	}
	if parsed.Port() != LocalhostAuthPort {
		if parsed.Port() != "" {
			logger.Warn("overriding redirect port", "configured", parsed.Port(), "using", LocalhostAuthPort)
		}
		parsed.Host = net.JoinHostPort(parsed.Hostname(), LocalhostAuthPort)
	}
	return parsed.String()
}

// GetClient retrieves an authenticated *http.Client. It loads the cached
// token, refreshes it when expired and re-saves it if it changed, or runs the
// browser authorization flow when no token exists. Prompts go to prompt.
func GetClient(ctx context.Context, paths Paths, prompt io.Writer, logger *slog.Logger) (*http.Client, error) {
	config, err := GetConfig(paths.CredentialsFile, Scopes, logger)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(paths.TokenFile)
	if err != nil {
		logger.Info("no usable token, starting web authorization", "token_file", paths.TokenFile, "error", err)
		tok, err = getTokenFromWeb(ctx, config, prompt, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(paths.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := config.TokenSource(ctx, tok)
	current, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	if current.AccessToken != tok.AccessToken || current.RefreshToken != tok.RefreshToken {
		logger.Debug("token refreshed, saving", "token_file", paths.TokenFile)
		if err := saveToken(paths.TokenFile, current); err != nil {
			logger.Warn("could not save refreshed token", "error", err)
		}
	}

	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(current, src)), nil
}

// Reset removes the cached token so the next GetClient authorizes again.
func Reset(tokenFile string) error {
	if err := os.Remove(tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete token file %s: %w", tokenFile, err)
	}
	return nil
}

// getTokenFromWeb runs the authorization code flow through a local web
// server that captures the redirect.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, prompt io.Writer, logger *slog.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	state := fmt.Sprintf("tasksync-%d", time.Now().UnixNano())

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(prompt, "Open the following URL in your browser to authorize tasksync:\n%s\n", authURL)
	logger.Info("waiting for authorization code", "redirect", config.RedirectURL)

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, errors.New("authorization timed out, please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes the token readable by the owner only.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}
