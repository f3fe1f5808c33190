// Package google implements the OAuth flow for the Google Drive provider:
// consent redirect, code exchange, and the refresh hook used by the token
// lifecycle manager.
package google

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/cloudintake/sentinel/internal/auth/token"
)

// Scopes requested from Drive. drive.file keeps access limited to files this
// app creates.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/userinfo.email",
}

// GetOAuthConfig builds the oauth2 config from environment credentials.
func GetOAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}

// Refresher returns the refresh hook for the token manager. Each call issues
// at most one request against Google's token endpoint.
func Refresher() token.Refresher {
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		config := GetOAuthConfig("")
		source := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		return source.Token()
	}
}
