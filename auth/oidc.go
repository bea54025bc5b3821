package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/folkengine/goname"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/globals"
)

// OIDC authenticates users via OpenID Connect ID tokens: the login field of
// the request names the configured provider, the secret carries the ID token.
// The verified email claim becomes the account id.
type OIDC struct {
	providers map[string]config.OIDCConfig
}

func NewOIDC(cfgs []config.OIDCConfig) *OIDC {
	providers := make(map[string]config.OIDCConfig, len(cfgs))
	for _, c := range cfgs {
		providers[c.Name] = c
	}
	return &OIDC{providers: providers}
}

func (o *OIDC) Authenticate(login, secret string) (*Account, error) {
	providerCfg, ok := o.providers[login]
	if !ok || secret == "" {
		return nil, ErrAuthFailed
	}
	provider, err := oidc.NewProvider(context.Background(), providerCfg.ProviderUrl)
	if err != nil {
		globals.AppLogger.Error("could not reach oidc provider", "provider", login, "error", err)
		return nil, ErrAuthFailed
	}
	conf := oidc.Config{}
	if providerCfg.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = providerCfg.ClientId
	}
	verifier := provider.Verifier(&conf)
	idToken, err := verifier.Verify(context.Background(), secret)
	if err != nil {
		globals.AppLogger.Debug("token verification failed", "provider", login, "error", err)
		return nil, ErrAuthFailed
	}
	claims := struct {
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
	}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ErrAuthFailed
	}
	if claims.Email == "" {
		return nil, ErrAuthFailed
	}
	return &Account{Id: claims.Email, Login: login, Pseudonym: claims.Nickname}, nil
}

func (o *OIDC) PseudonymFor(account *Account) string {
	if account.Pseudonym != "" {
		return account.Pseudonym
	}
	return goname.New(goname.FantasyMap).FirstLast()
}
