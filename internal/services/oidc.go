package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/HammerMeetNail/livebingo/internal/config"
)

// Provider names an external account provider. It is part of the derived
// identity, so renaming one re-keys every linked identity.
type Provider string

const (
	ProviderGoogle Provider = "google"
)

var (
	ErrMissingSubject = errors.New("id token has no subject")
	ErrNonceMismatch  = errors.New("id token nonce mismatch")
)

// IdentityClaims is what a login proves: an account subject at a provider.
// Nothing else from the id token is kept.
type IdentityClaims struct {
	Provider Provider
	Subject  string
}

type OAuthProvider interface {
	AuthCodeURL(state, nonce string) string
	ExchangeAndVerify(ctx context.Context, code, nonce string) (IdentityClaims, error)
}

// OIDCProvider runs the authorization-code exchange against one issuer.
type OIDCProvider struct {
	name     Provider
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer named in cfg.
func NewOIDCProvider(ctx context.Context, name Provider, cfg config.OAuthProviderConfig) (*OIDCProvider, error) {
	var missing []string
	for field, value := range map[string]string{
		"client id":     cfg.ClientID,
		"client secret": cfg.ClientSecret,
		"redirect url":  cfg.RedirectURL,
		"issuer url":    cfg.IssuerURL,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s oidc: missing %s", name, strings.Join(missing, ", "))
	}

	issuer, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("%s oidc discovery: %w", name, err)
	}

	return &OIDCProvider{
		name: name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     issuer.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// NewOIDCProviders discovers every enabled provider in cfg. Disabled
// providers are left out of the map.
func NewOIDCProviders(ctx context.Context, cfg config.OAuthConfig) (map[Provider]OAuthProvider, error) {
	providers := map[Provider]OAuthProvider{}
	if cfg.Google.Enabled {
		google, err := NewOIDCProvider(ctx, ProviderGoogle, cfg.Google)
		if err != nil {
			return nil, err
		}
		providers[ProviderGoogle] = google
	}
	return providers, nil
}

func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// ExchangeAndVerify trades code for an id token and checks its signature,
// audience and nonce.
func (p *OIDCProvider) ExchangeAndVerify(ctx context.Context, code, nonce string) (IdentityClaims, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("exchanging code: %w", err)
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return IdentityClaims{}, errors.New("token response has no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("verifying id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return IdentityClaims{}, ErrNonceMismatch
	}
	if strings.TrimSpace(idToken.Subject) == "" {
		return IdentityClaims{}, ErrMissingSubject
	}
	return IdentityClaims{Provider: p.name, Subject: idToken.Subject}, nil
}
