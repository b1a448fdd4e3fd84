package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"

	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/card/cardtest"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	challenge    string
	challengeErr error
	accept       bool
	verifyErr    error
	registerErr  error

	verifyCalls int
	signature   string
	registered  string
}

func (f *fakeAPI) GetChallenge(context.Context, string) (string, error) {
	return f.challenge, f.challengeErr
}

func (f *fakeAPI) VerifyChallenge(_ context.Context, _ string, sig string) (bool, error) {
	f.verifyCalls++
	f.signature = sig
	return f.accept, f.verifyErr
}

func (f *fakeAPI) RegisterUser(_ context.Context, _ string, key string) error {
	f.registered = key
	return f.registerErr
}

type signerFunc func(context.Context, []byte) ([]byte, error)

func (f signerFunc) Sign(ctx context.Context, data []byte) ([]byte, error) { return f(ctx, data) }

type hookLog []string

func (h *hookLog) AuthAttempt(op, result string) { *h = append(*h, op+":"+result) }

var challenge = base64.StdEncoding.EncodeToString([]byte("nonce-123"))

func echoSigner(_ context.Context, data []byte) ([]byte, error) {
	return append([]byte("signed:"), data...), nil
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		api := &fakeAPI{challenge: challenge, accept: true}
		hook := &hookLog{}
		c := NewCoordinator(api, signerFunc(echoSigner), WithHook(hook))

		require.NoError(t, c.Authenticate(ctx, "C9-1"))
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("signed:nonce-123")), api.signature)
		assert.Equal(t, hookLog{"authenticate:success"}, *hook)
	})

	tests := []struct {
		name        string
		api         *fakeAPI
		signer      signerFunc
		target      error
		verifyCalls int
	}{
		{"Challenge Unavailable", &fakeAPI{challengeErr: errors.New("502")}, echoSigner, ErrNoChallenge, 0},
		{"Challenge Not Base64", &fakeAPI{challenge: "%%%"}, echoSigner, ErrNoChallenge, 0},
		{"Sign Fails", &fakeAPI{challenge: challenge, accept: true},
			func(context.Context, []byte) ([]byte, error) { return nil, &applet.ProtocolError{Op: "sign", SW: 0x6982} },
			ErrSignFailed, 0},
		{"Empty Signature", &fakeAPI{challenge: challenge, accept: true},
			func(context.Context, []byte) ([]byte, error) { return nil, nil }, ErrSignFailed, 0},
		{"Rejected", &fakeAPI{challenge: challenge, accept: false}, echoSigner, ErrRejected, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(tt.api, tt.signer)
			assert.ErrorIs(t, c.Authenticate(ctx, "C9-1"), tt.target)
			assert.Equal(t, tt.verifyCalls, tt.api.verifyCalls, "no retries, no verify after a failed step")
		})
	}

	t.Run("Verify Transport Error", func(t *testing.T) {
		boom := errors.New("connection reset")
		api := &fakeAPI{challenge: challenge, verifyErr: boom}
		err := NewCoordinator(api, signerFunc(echoSigner)).Authenticate(ctx, "C9-1")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, api.verifyCalls)
	})
}

func TestAuthenticate_WithCard(t *testing.T) {
	ctx := context.Background()
	sim := cardtest.New()
	m := card.NewManager(iso7816.NewChannel(sim))
	require.NoError(t, m.SelectApplet(ctx))
	require.True(t, m.VerifyPin(ctx, applet.DefaultPIN).OK())

	api := &fakeAPI{challenge: challenge, accept: true}
	require.NoError(t, NewCoordinator(api, m).Authenticate(ctx, "C9-1"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("sig:nonce-123")), api.signature)
	assert.Equal(t, 1, sim.Count(applet.InsSignRSA))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	mod := cardtest.New().Modulus

	api := &fakeAPI{}
	hook := &hookLog{}
	require.NoError(t, NewCoordinator(api, nil, WithHook(hook)).Register(ctx, "C9-1", mod))
	assert.Contains(t, api.registered, "-----BEGIN PUBLIC KEY-----")
	assert.Equal(t, hookLog{"register:success"}, *hook)

	err := NewCoordinator(&fakeAPI{}, nil).Register(ctx, "C9-1", mod[:64])
	assert.Error(t, err)
}

func TestModulusToPEM(t *testing.T) {
	mod := cardtest.New().Modulus

	out, err := ModulusToPEM(mod)
	require.NoError(t, err)

	block, rest := pem.Decode([]byte(out))
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "PUBLIC KEY", block.Type)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	pub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 0, pub.N.Cmp(new(big.Int).SetBytes(mod)))
	assert.Equal(t, PublicExponent, pub.E)
}
