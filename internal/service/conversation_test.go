package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/repository"
	"pqchat-backend/internal/wire"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKeyIsSymmetric(t *testing.T) {
	for i := 0; i < 20; i++ {
		a, b := uuid.New(), uuid.New()
		k1, a1, b1 := CanonicalKey(a, b)
		k2, a2, b2 := CanonicalKey(b, a)
		assert.Equal(t, k1, k2)
		assert.Equal(t, a1, a2)
		assert.Equal(t, b1, b2)
		assert.Less(t, a1.String(), b1.String())
	}
}

func TestConversationForBothDirections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")

	c1, err := f.conversations.ConversationFor(ctx, alice.user.ID, bob.user.ID)
	require.NoError(t, err)
	c2, err := f.conversations.ConversationFor(ctx, bob.user.ID, alice.user.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	_, err = f.conversations.ConversationFor(ctx, alice.user.ID, alice.user.ID)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSendRequiresContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")

	tMs := f.tMs()
	ck, cm := []byte("ck"), []byte("cm")
	nonce, sig := alice.sign(t, tMs, ck, cm)
	_, err := f.messages.Send(ctx, alice.user, SendMessageRequest{
		ToHandle: "bob", TMs: tMs, Nonce: nonce, KEMCiphertext: ck, AEADCiphertext: cm, Signature: sig,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotAContact)

	_, err = f.messages.Send(ctx, alice.user, SendMessageRequest{
		ToHandle: "ninguem", TMs: tMs, Nonce: nonce, KEMCiphertext: ck, AEADCiphertext: cm, Signature: sig,
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	// o nonce não foi queimado pelas tentativas recusadas
	f.connect(t, alice, bob)
	_, err = f.messages.Send(ctx, alice.user, SendMessageRequest{
		ToHandle: "bob", TMs: tMs, Nonce: nonce, KEMCiphertext: ck, AEADCiphertext: cm, Signature: sig,
	})
	require.NoError(t, err)
}

func TestSendEnvelopeChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.connect(t, alice, bob)

	ck, cm := []byte("ck"), []byte("cm")
	tMs := f.tMs()
	nonce, sig := alice.sign(t, tMs, ck, cm)
	in := SendMessageRequest{ToHandle: "bob", TMs: tMs, Nonce: nonce, KEMCiphertext: ck, AEADCiphertext: cm, Signature: sig}

	tampered := in
	tampered.AEADCiphertext = []byte("cm2")
	_, err := f.messages.Send(ctx, alice.user, tampered)
	assert.ErrorIs(t, err, apperrors.ErrBadSignature)

	_, err = f.messages.Send(ctx, alice.user, in)
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, alice.user, in)
	assert.ErrorIs(t, err, apperrors.ErrReplay)

	f.now = f.now.Add(3 * time.Minute)
	nonce, sig = alice.sign(t, tMs, ck, cm)
	_, err = f.messages.Send(ctx, alice.user, SendMessageRequest{
		ToHandle: "bob", TMs: tMs, Nonce: nonce, KEMCiphertext: ck, AEADCiphertext: cm, Signature: sig,
	})
	assert.ErrorIs(t, err, apperrors.ErrStale)

	for _, tMs := range []int64{0, -5} {
		_, err = f.messages.Send(ctx, alice.user, SendMessageRequest{
			ToHandle: "bob", TMs: tMs, Nonce: make([]byte, 16), KEMCiphertext: ck, AEADCiphertext: cm, Signature: []byte("lixo"),
		})
		assert.ErrorIs(t, err, apperrors.ErrStale, "t=%d", tMs)
	}
}

func TestSendPublishesOnConversationTopic(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.connect(t, alice, bob)

	conv, err := f.conversations.ConversationFor(context.Background(), alice.user.ID, bob.user.ID)
	require.NoError(t, err)
	events, cancel := f.hub.Subscribe(pubsub.ChatTopic(conv.ID))
	defer cancel()

	msg := f.send(t, alice, bob, f.tMs())

	select {
	case payload := <-events:
		var got wire.Message
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "alice", got.From)
		assert.Equal(t, "bob", got.To)
	case <-time.After(time.Second):
		t.Fatal("nenhum aviso publicado")
	}
}

func TestFetchSinceIsGapFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.connect(t, alice, bob)

	base := f.tMs()
	// timestamps repetidos e fora de ordem de chegada
	for _, dt := range []int64{0, 5, 5, 2, 5, 9, 1, 9, 9, 3} {
		f.send(t, alice, bob, base+dt)
	}
	conv, err := f.conversations.ConversationFor(ctx, alice.user.ID, bob.user.ID)
	require.NoError(t, err)

	full, err := f.conversations.FetchSince(ctx, bob.user.ID, conv.ID, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, full, 10)
	for i := 1; i < len(full); i++ {
		assert.True(t, full[i].After(full[i-1].TMs, full[i-1].ID), "ordem (t, id) violada em %d", i)
	}

	var paged []*models.Message
	var afterT, afterID int64
	for {
		page, err := f.conversations.FetchSince(ctx, bob.user.ID, conv.ID, afterT, afterID, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		last := page[len(page)-1]
		afterT, afterID = last.TMs, last.ID
	}
	require.Len(t, paged, len(full))
	for i := range full {
		assert.Equal(t, full[i].ID, paged[i].ID)
	}

	// repetir com o cursor final não devolve nada
	again, err := f.conversations.FetchSince(ctx, bob.user.ID, conv.ID, afterT, afterID, 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFetchSinceRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol := f.member(t, "alice"), f.member(t, "bob"), f.member(t, "carol")
	f.connect(t, alice, bob)
	conv, err := f.conversations.ConversationFor(ctx, alice.user.ID, bob.user.ID)
	require.NoError(t, err)

	_, err = f.conversations.FetchSince(ctx, carol.user.ID, conv.ID, 0, 0, 0)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	_, err = f.conversations.FetchSince(ctx, alice.user.ID, uuid.New(), 0, 0, 0)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultFetchLimit, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 42, ClampLimit(42))
	assert.Equal(t, MaxFetchLimit, ClampLimit(5000))
}

func TestReadStateAndUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.connect(t, alice, bob)

	open, err := f.conversations.Open(ctx, bob.user, "alice")
	require.NoError(t, err)
	conv := open.Conversation

	// sem mensagens, marcar como lido não faz nada
	id, err := f.conversations.MarkRead(ctx, bob.user.ID, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, id)

	base := f.tMs()
	f.send(t, alice, bob, base)
	f.send(t, bob, alice, base+1)
	m3 := f.send(t, alice, bob, base+2)

	n, err := f.conversations.UnreadCount(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	id, err = f.conversations.MarkRead(ctx, bob.user.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, id)

	lastID, lastT, err := f.conversations.LastRead(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, lastID)
	assert.Equal(t, m3.TMs, lastT)

	n, err = f.conversations.UnreadCount(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.send(t, alice, bob, base+3)
	n, err = f.conversations.UnreadCount(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// cursor apontando para mensagem que não existe mais degrada para t=0
	orphaned := NewConversationService(&missingMessages{
		InMemoryStore: f.store,
		missing:       map[int64]bool{m3.ID: true},
	}, zerolog.Nop())
	lastID, lastT, err = orphaned.LastRead(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	assert.Equal(t, m3.ID, lastID)
	assert.Zero(t, lastT)
	n, err = orphaned.UnreadCount(ctx, conv.ID, bob.user.ID)
	require.NoError(t, err)
	// com t=0, todas as mensagens recebidas ficam depois do cursor
	assert.Equal(t, 3, n)
}

// missingMessages esconde mensagens do GetMessage
type missingMessages struct {
	*repository.InMemoryStore
	missing map[int64]bool
}

func (s *missingMessages) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	if s.missing[id] {
		return nil, repository.ErrNotFound
	}
	return s.InMemoryStore.GetMessage(ctx, id)
}

func TestOpenReturnsRecentHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.member(t, "carol")
	f.connect(t, alice, bob)

	base := f.tMs()
	for i := 0; i < OpenHistorySize+5; i++ {
		f.send(t, alice, bob, base+int64(i))
	}

	open, err := f.conversations.Open(ctx, alice.user, "bob")
	require.NoError(t, err)
	require.Len(t, open.History, OpenHistorySize)
	assert.Equal(t, base+5, open.History[0].TMs)
	assert.Equal(t, base+int64(OpenHistorySize+4), open.History[OpenHistorySize-1].TMs)

	_, err = f.conversations.Open(ctx, alice.user, "carol")
	assert.ErrorIs(t, err, apperrors.ErrNotAContact)

	_, err = f.conversations.Open(ctx, alice.user, "bob\x00x")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSummaryOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob, carol, dave := f.member(t, "alice"), f.member(t, "bob"), f.member(t, "carol"), f.member(t, "dave")
	f.connect(t, alice, bob)
	f.connect(t, alice, carol)
	f.connect(t, alice, dave)

	// conversa aberta sem mensagens não aparece
	_, err := f.conversations.Open(ctx, alice.user, "dave")
	require.NoError(t, err)

	base := f.tMs()
	f.send(t, bob, alice, base)
	f.send(t, bob, alice, base+1)
	f.send(t, carol, alice, base+10)

	summary, err := f.conversations.Summary(ctx, alice.user)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "carol", summary[0].PeerHandle)
	assert.Equal(t, 1, summary[0].Unread)
	assert.Equal(t, base+10, summary[0].LastTMs)
	assert.Equal(t, "bob", summary[1].PeerHandle)
	assert.Equal(t, 2, summary[1].Unread)
}

func TestMailbox(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, bob := f.member(t, "alice"), f.member(t, "bob")
	f.connect(t, alice, bob)

	base := f.tMs()
	f.send(t, alice, bob, base)
	last := f.send(t, alice, bob, base+1)

	inbox, err := f.messages.Mailbox(ctx, bob.user, BoxInbox)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, last.ID, inbox[0].ID)

	outbox, err := f.messages.Mailbox(ctx, bob.user, BoxOutbox)
	require.NoError(t, err)
	assert.Empty(t, outbox)

	_, err = f.messages.Mailbox(ctx, bob.user, "lixeira")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	views := f.messages.Present(ctx, inbox)
	require.Len(t, views, 2)
	assert.Equal(t, "alice", views[0].From)
	assert.Equal(t, "bob", views[0].To)
}
