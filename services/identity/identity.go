// Package identitysvc talks to the external identity provider: it holds the session token
// claims layout, the token verification key and a client for the provider's user API.
package identitysvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

var (
	ErrNoSigningKey    = errors.New("no token verification key configured")
	ErrUnknownIdentity = errors.New("identity provider does not know this user")
)

// Claims represents the session claims issued by the identity provider.
type Claims struct {
	jwt.StandardClaims
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

func (c Claims) Profile() user.Profile {
	return user.Profile{Email: c.Email, FirstName: c.FirstName, LastName: c.LastName, ImageURL: c.ImageURL}
}

// VerificationKey returns the signing method and key session tokens are checked with.
// A PEM public key selects RS256; otherwise the shared secret is used with HS256.
func VerificationKey(conf core.IdentityConfig) (string, interface{}, error) {
	if conf.JWTPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(conf.JWTPublicKey))
		if err != nil {
			return "", nil, errors.Wrap(err, "parsing identity public key")
		}
		return AlgorithmRS256, key, nil
	}
	if conf.JWTSecret != "" {
		return AlgorithmHS256, []byte(conf.JWTSecret), nil
	}
	return "", nil, ErrNoSigningKey
}

type (
	apiEmailAddress struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	}

	apiUser struct {
		ID                    string            `json:"id"`
		FirstName             string            `json:"first_name"`
		LastName              string            `json:"last_name"`
		ImageURL              string            `json:"image_url"`
		PrimaryEmailAddressID string            `json:"primary_email_address_id"`
		EmailAddresses        []apiEmailAddress `json:"email_addresses"`
	}
)

func (u apiUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Client fetches user profiles from the identity provider's backend API.
type Client struct {
	rc      *resty.Client
	enabled bool
	logger  core.Logger
}

func NewClient(conf core.IdentityConfig, logger core.Logger) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rc := resty.New().
		SetBaseURL(conf.APIURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if conf.APIKey != "" {
		rc.SetAuthToken(conf.APIKey)
	}
	return &Client{rc: rc, enabled: conf.APIURL != "" && conf.APIKey != "", logger: logger}
}

// FetchProfile loads the profile of the user with the given external ID.
func (c *Client) FetchProfile(ctx context.Context, externalID string) (user.Profile, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("id", externalID).
		SetResult(&apiUser{}).
		Get("/v1/users/{id}")
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "requesting identity profile")
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return user.Profile{}, ErrUnknownIdentity
	case resp.IsError():
		return user.Profile{}, fmt.Errorf("identity profile: unexpected status %d", resp.StatusCode())
	}

	au, ok := resp.Result().(*apiUser)
	if !ok || au == nil {
		return user.Profile{}, errors.New("identity profile: empty response")
	}
	return user.Profile{
		Email:     au.primaryEmail(),
		FirstName: au.FirstName,
		LastName:  au.LastName,
		ImageURL:  au.ImageURL,
	}, nil
}

// ResolveProfile completes known with the provider's profile. Fetch failures are logged and known is returned as is.
func (c *Client) ResolveProfile(ctx context.Context, externalID string, known user.Profile) user.Profile {
	if c == nil || !c.enabled || known.IsComplete() {
		return known
	}
	p, err := c.FetchProfile(ctx, externalID)
	if err != nil {
		c.logger.Warn("fetching identity profile", err, map[string]interface{}{"external_id": externalID})
		return known
	}
	return known.Merge(p)
}
