// Package auth proves card possession to the membership backend with a
// challenge signed on the card.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"github.com/gregLibert/kiosk-card/pkg/applet"
)

var (
	ErrNoChallenge = errors.New("auth: failed to obtain challenge")
	ErrSignFailed  = errors.New("auth: card signing failed")
	ErrRejected    = errors.New("auth: challenge verification failed")
)

// PublicExponent is the RSA exponent of card keys.
const PublicExponent = 65537

// API is the backend client. Challenges and signatures travel as standard
// base64.
type API interface {
	GetChallenge(ctx context.Context, userID string) (string, error)
	VerifyChallenge(ctx context.Context, userID, signature string) (bool, error)
	RegisterUser(ctx context.Context, userID, publicKeyPEM string) error
}

// Signer signs with the card key. card.Manager implements it.
type Signer interface {
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// Hook observes attempt results. result is "success" or the failed step.
type Hook interface {
	AuthAttempt(op, result string)
}

// Coordinator runs the challenge-response exchange. It never retries:
// every step fails fast.
type Coordinator struct {
	api    API
	signer Signer
	logger *slog.Logger
	hook   Hook
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithHook(h Hook) Option {
	return func(c *Coordinator) {
		c.hook = h
	}
}

func NewCoordinator(api API, signer Signer, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:    api,
		signer: signer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate fetches a challenge for userID, signs it on the card and
// submits the signature. A signing failure ends the attempt before any
// further network call.
func (c *Coordinator) Authenticate(ctx context.Context, userID string) error {
	log := c.logger.With("attempt", uuid.NewString(), "user", userID)

	challenge, err := c.api.GetChallenge(ctx, userID)
	if err != nil {
		return c.fail(log, "authenticate", "challenge", fmt.Errorf("%w: %w", ErrNoChallenge, err))
	}
	raw, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil || len(raw) == 0 {
		return c.fail(log, "authenticate", "challenge", fmt.Errorf("%w: undecodable challenge", ErrNoChallenge))
	}

	sig, err := c.signer.Sign(ctx, raw)
	if err != nil {
		return c.fail(log, "authenticate", "sign", fmt.Errorf("%w: %w", ErrSignFailed, err))
	}
	if len(sig) == 0 {
		return c.fail(log, "authenticate", "sign", ErrSignFailed)
	}

	ok, err := c.api.VerifyChallenge(ctx, userID, base64.StdEncoding.EncodeToString(sig))
	if err != nil {
		return c.fail(log, "authenticate", "verify", fmt.Errorf("verify challenge: %w", err))
	}
	if !ok {
		return c.fail(log, "authenticate", "verify", ErrRejected)
	}

	log.Info("card authenticated")
	c.observe("authenticate", "success")
	return nil
}

// Register submits the card public key for userID.
func (c *Coordinator) Register(ctx context.Context, userID string, modulus []byte) error {
	log := c.logger.With("attempt", uuid.NewString(), "user", userID)

	key, err := ModulusToPEM(modulus)
	if err != nil {
		return c.fail(log, "register", "key", err)
	}
	if err := c.api.RegisterUser(ctx, userID, key); err != nil {
		return c.fail(log, "register", "submit", fmt.Errorf("register user: %w", err))
	}

	log.Info("card key registered")
	c.observe("register", "success")
	return nil
}

func (c *Coordinator) fail(log *slog.Logger, op, step string, err error) error {
	log.Warn("card "+op+" failed", "step", step, "error", err)
	c.observe(op, step)
	return err
}

func (c *Coordinator) observe(op, result string) {
	if c.hook != nil {
		c.hook.AuthAttempt(op, result)
	}
}

// ModulusToPEM wraps a big-endian RSA modulus with exponent 65537 in a
// PKIX "PUBLIC KEY" PEM block.
func ModulusToPEM(modulus []byte) (string, error) {
	if len(modulus) != applet.ModulusLength {
		return "", fmt.Errorf("auth: modulus is %d bytes, want %d", len(modulus), applet.ModulusLength)
	}

	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: PublicExponent}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("auth: encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
