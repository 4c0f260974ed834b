// facebook.go -- Facebook OAuth2 provider backed by the Graph API.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const facebookGraphMe = "https://graph.facebook.com/me?fields=id,first_name,last_name,name,link,email,picture"

// FacebookProvider implements Provider with the plain OAuth2 code flow plus a
// Graph API profile lookup.
type FacebookProvider struct {
	config *oauth2.Config
	meURL  string
}

// NewFacebookProvider builds a provider against Facebook's fixed endpoints.
func NewFacebookProvider(clientID, clientSecret, redirectURL string) *FacebookProvider {
	return &FacebookProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		meURL: facebookGraphMe,
	}
}

func (p *FacebookProvider) Name() domain.AuthProvider { return domain.ProviderFacebook }
func (p *FacebookProvider) ClientID() string          { return p.config.ClientID }
func (p *FacebookProvider) RedirectURL() string       { return p.config.RedirectURL }
func (p *FacebookProvider) AuthorizationURI() string  { return p.config.Endpoint.AuthURL }

// AuthCodeURL builds the Facebook login dialog URL with state and PKCE S256 challenge.
func (p *FacebookProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the code for an access token and fetches /me with it.
func (p *FacebookProvider) Exchange(ctx context.Context, code, codeVerifier string) (Identity, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return p.fetchProfile(ctx, p.config.Client(ctx, token))
}

func (p *FacebookProvider) fetchProfile(ctx context.Context, client *http.Client) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.meURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building graph request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching graph profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph profile returned status %d", resp.StatusCode)
	}

	identity := Identity{}
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("decoding graph profile: %w", err)
	}
	if identity.String("id") == "" {
		return nil, fmt.Errorf("graph profile has no id")
	}
	return identity, nil
}
