package service

import (
	"context"
	"testing"
	"time"

	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type member struct {
	user *models.User
	keys *pqcrypto.IdentityKeys
}

type fixture struct {
	now           time.Time
	store         *repository.InMemoryStore
	hub           *pubsub.Hub
	gate          *envelope.Gate
	contacts      *ContactService
	conversations *ConversationService
	messages      *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:   time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		store: repository.NewInMemoryStore(),
		hub:   pubsub.NewHub(8, zerolog.Nop()),
	}
	f.gate = envelope.NewGate(pqcrypto.NewSuite(), f.store, envelope.WithClock(f.clock))
	f.contacts = NewContactService(f.store, f.gate, zerolog.Nop())
	f.conversations = NewConversationService(f.store, zerolog.Nop())
	f.messages = NewMessageService(f.store, f.conversations, f.gate, f.hub, zerolog.Nop())
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) tMs() int64 { return f.now.UnixMilli() }

func (f *fixture) member(t *testing.T, handle string) *member {
	t.Helper()
	keys, err := pqcrypto.GenerateIdentityKeys()
	require.NoError(t, err)
	u := &models.User{
		ID:               uuid.New(),
		Handle:           handle,
		SigningPublicKey: keys.SigningPublicKey,
		KEMPublicKey:     keys.KEMPublicKey,
		CreatedAt:        f.now,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return &member{user: u, keys: keys}
}

// sign produz (nonce, assinatura) sobre pack(t, nonce, campos...)
func (m *member) sign(t *testing.T, tMs int64, fields ...[]byte) ([]byte, []byte) {
	t.Helper()
	nonce, err := pqcrypto.RandomBytes(models.NonceSize)
	require.NoError(t, err)
	sig, err := pqcrypto.Sign(m.keys.SigningSecretKey, envelope.Pack(tMs, nonce, fields...))
	require.NoError(t, err)
	return nonce, sig
}

func (f *fixture) request(t *testing.T, from, to *member) *models.ContactRequest {
	t.Helper()
	tMs := f.tMs()
	nonce, sig := from.sign(t, tMs, to.keys.SigningPublicKey)
	req, err := f.contacts.Create(context.Background(), from.user, CreateContactRequest{
		RecipientHandle:      to.user.Handle,
		TMs:                  tMs,
		Nonce:                nonce,
		Signature:            sig,
		PeerSigningPublicKey: to.keys.SigningPublicKey,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) acceptProof(t *testing.T, recipient, requester *member) *AcceptProof {
	t.Helper()
	tMs := f.tMs()
	nonce, sig := recipient.sign(t, tMs, requester.keys.SigningPublicKey)
	return &AcceptProof{TMs: tMs, Nonce: nonce, Signature: sig}
}

func (f *fixture) connect(t *testing.T, a, b *member) {
	t.Helper()
	req := f.request(t, a, b)
	_, err := f.contacts.Respond(context.Background(), b.user, req.ID, DecisionAccept, f.acceptProof(t, b, a))
	require.NoError(t, err)
}

func (f *fixture) send(t *testing.T, from, to *member, tMs int64) *models.Message {
	t.Helper()
	ck := []byte("kem-ciphertext")
	cm := []byte("aead-ciphertext")
	nonce, sig := from.sign(t, tMs, ck, cm)
	msg, err := f.messages.Send(context.Background(), from.user, SendMessageRequest{
		ToHandle:       to.user.Handle,
		TMs:            tMs,
		Nonce:          nonce,
		KEMCiphertext:  ck,
		AEADCiphertext: cm,
		Signature:      sig,
	})
	require.NoError(t, err)
	return msg
}
