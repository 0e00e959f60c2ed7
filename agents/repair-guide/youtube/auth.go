package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no usable token is cached and the device flow
// may not be started.
var ErrNoToken = errors.New("no cached YouTube token; run 'repair-guide auth' first")

// tokenSaver wraps an oauth2.TokenSource and persists refreshed tokens so
// that they survive restarts.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	logger    *slog.Logger
	mu        sync.Mutex // Protects concurrent token refresh operations
}

// Token implements oauth2.TokenSource. It refreshes the token when needed and
// writes any refreshed token back to disk.
func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// Get the token (this will refresh if needed)
	newToken, err := ts.config.TokenSource(context.Background(), ts.token).Token()
	if err != nil {
		return nil, err
	}

	// If the token was refreshed, save it
	if newToken.AccessToken != ts.token.AccessToken {
		ts.logger.Info("token refreshed, saving", "file", ts.tokenFile)
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			ts.logger.Warn("failed to save refreshed token", "error", err)
		}
	}
	return newToken, nil
}

// getToken loads a cached token. Expired tokens are kept when they carry a
// refresh token. Without a usable cached token the device flow runs only when
// interactive is set.
func getToken(ctx context.Context, config *oauth2.Config, tokenFile string, interactive bool, logger *slog.Logger) (*oauth2.Token, error) {
	// Try to load token from file
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		// Even if the token appears expired, keep it if it has a refresh token.
		// The tokenSaver will handle refreshing it.
		if tok.RefreshToken != "" {
			logger.Debug("loaded token from file", "expiry", tok.Expiry)
			return tok, nil
		}
		// No refresh token but still valid
		if tok.Valid() {
			return tok, nil
		}
	}

	// Scheduled and search runs must never block on a browser prompt
	if !interactive {
		return nil, ErrNoToken
	}

	// No usable token, start the device flow
	tok, err = getTokenWithDeviceFlow(ctx, config)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			logger.Error("device authorization rejected", "status", retrieveErr.Response.Status, "body", strings.TrimSpace(string(retrieveErr.Body)))
		}
		return nil, fmt.Errorf("device authorization failed: %w. Ensure the OAuth client type is 'TVs and Limited Input devices' and the YouTube Data API v3 is enabled", err)
	}

	// Save token to file
	if err := saveToken(tokenFile, tok); err != nil {
		logger.Warn("failed to save token", "error", err)
	}
	return tok, nil
}

// getTokenWithDeviceFlow prints a verification URL and user code, then polls
// until the user approves the request on any device.
func getTokenWithDeviceFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Printf("YOUTUBE DEVICE AUTHORIZATION REQUIRED\n")
	fmt.Printf("%s\n", strings.Repeat("=", 80))
	fmt.Printf("1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Printf("2. Enter this code when prompted: %s\n\n", resp.UserCode)
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}
	fmt.Printf("Authorization successful.\n\n")
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	// Ensure parent directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	return nil
}
