package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryGuard struct {
	mu   sync.Mutex
	used map[string]bool
}

func (g *memoryGuard) Claim(_ context.Context, identity, nonce string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := identity + ":" + nonce
	if g.used[key] {
		return false, nil
	}
	g.used[key] = true
	return true, nil
}

func TestSignInIssuesSessionForVerifiedIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wallet := newWallet(t)

	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)

	_, err = env.Auth.IssueAfterSignatureCheck(ctx, " "+wallet.Identity, ch.MessageToSign, wallet.sign(ch.MessageToSign))
	assert.Equal(t, KindInvalidInput, KindOf(err), "padded identity is not the same wallet")

	session, err := env.Auth.IssueAfterSignatureCheck(ctx, wallet.Identity, ch.MessageToSign, wallet.sign(ch.MessageToSign))
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	identity, err := env.Auth.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet.Identity, identity)

	// first authenticated contact creates the player row
	p := env.player(t, wallet.Identity)
	assert.Equal(t, wallet.Identity, p.Identity)
}

func TestSignInRejectsWrongSigner(t *testing.T) {
	env := newTestEnv(t)
	wallet, attacker := newWallet(t), newWallet(t)

	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)

	_, err = env.Auth.IssueAfterSignatureCheck(context.Background(), wallet.Identity, ch.MessageToSign, attacker.sign(ch.MessageToSign))
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, ReasonBadSignature, reasonOf(err))

	_, err = env.Players.GetPlayer(context.Background(), wallet.Identity)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSignInRejectsMessageForAnotherWallet(t *testing.T) {
	env := newTestEnv(t)
	victim, attacker := newWallet(t), newWallet(t)

	ch, err := env.Auth.Challenge(victim.Identity)
	require.NoError(t, err)

	// attacker signs the victim's challenge with their own key
	_, err = env.Auth.IssueAfterSignatureCheck(context.Background(), attacker.Identity, ch.MessageToSign, attacker.sign(ch.MessageToSign))
	require.Error(t, err)
	assert.Equal(t, ReasonBadSignature, reasonOf(err))
}

func TestSignInRejectsAlteredMessage(t *testing.T) {
	env := newTestEnv(t)
	wallet := newWallet(t)
	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)

	sig := wallet.sign(ch.MessageToSign)
	altered := BuildSignInMessage(wallet.Identity, ch.Nonce, ch.IssuedAtMs+1)
	_, err = env.Auth.IssueAfterSignatureCheck(context.Background(), wallet.Identity, altered, sig)
	require.Error(t, err)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestSignInRejectsExpiredChallenge(t *testing.T) {
	env := newTestEnv(t)
	wallet := newWallet(t)
	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)

	env.Clock.Advance(ChallengeWindow + time.Second)
	_, err = env.Auth.IssueAfterSignatureCheck(context.Background(), wallet.Identity, ch.MessageToSign, wallet.sign(ch.MessageToSign))
	require.Error(t, err)
	assert.Equal(t, ReasonChallengeExpired, reasonOf(err))
}

func TestNonceGuardMakesChallengeSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.Auth.Guard = &memoryGuard{used: map[string]bool{}}
	wallet := newWallet(t)
	ctx := context.Background()

	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)
	sig := wallet.sign(ch.MessageToSign)

	_, err = env.Auth.IssueAfterSignatureCheck(ctx, wallet.Identity, ch.MessageToSign, sig)
	require.NoError(t, err)

	_, err = env.Auth.IssueAfterSignatureCheck(ctx, wallet.Identity, ch.MessageToSign, sig)
	require.Error(t, err)
	assert.Equal(t, ReasonChallengeExpired, reasonOf(err))
}

func TestSessionValidAfterPlayerBanned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wallet := newWallet(t)

	ch, err := env.Auth.Challenge(wallet.Identity)
	require.NoError(t, err)
	session, err := env.Auth.IssueAfterSignatureCheck(ctx, wallet.Identity, ch.MessageToSign, wallet.sign(ch.MessageToSign))
	require.NoError(t, err)

	_, err = env.Players.Ban(ctx, wallet.Identity, 3600)
	require.NoError(t, err)

	// authentication still succeeds; authorization is where the ban bites
	identity, err := env.Auth.Validate(session.Token)
	require.NoError(t, err)
	_, err = env.Wagers.Create(ctx, identity, CreateWagerInput{Game: "chess", StakeLamports: 1000})
	assert.Equal(t, KindForbidden, KindOf(err))
}
