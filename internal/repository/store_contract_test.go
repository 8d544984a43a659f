package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pqchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercita o comportamento comum a todas as implementações de Store
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	mkUser := func(t *testing.T, s Store, handle string) *models.User {
		t.Helper()
		u := &models.User{
			ID:               uuid.New(),
			Handle:           handle,
			SigningPublicKey: []byte("ps-" + handle),
			KEMPublicKey:     []byte("pk-" + handle),
			CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, s.CreateUser(ctx, u))
		return u
	}

	mkRequest := func(t *testing.T, s Store, from *models.User, toHandle string) *models.ContactRequest {
		t.Helper()
		req := &models.ContactRequest{
			ID:              uuid.New(),
			RequesterID:     from.ID,
			RecipientHandle: toHandle,
			Note:            "oi",
			Status:          models.ContactRequestPending,
			TMs:             time.Now().UnixMilli(),
			Nonce:           []byte(uuid.NewString()[:16]),
			Signature:       []byte("sig"),
			RequesterPubKey: from.SigningPublicKey,
			CreatedAt:       time.Now().UTC(),
		}
		require.NoError(t, s.CreateContactRequest(ctx, req))
		return req
	}

	t.Run("identidades", func(t *testing.T) {
		s := newStore(t)
		alice := mkUser(t, s, "alice")

		dup := &models.User{ID: uuid.New(), Handle: "alice", SigningPublicKey: []byte("x"), KEMPublicKey: []byte("y"), CreatedAt: time.Now()}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrHandleTaken)

		got, err := s.GetUserByHandle(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, alice.SigningPublicKey, got.SigningPublicKey)

		got, err = s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Handle)

		_, err = s.GetUserByHandle(ctx, "ninguem")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("nonces", func(t *testing.T) {
		s := newStore(t)
		nonce := []byte("0123456789abcdef")

		ok, err := s.ConsumeNonce(ctx, []byte("chave-a"), nonce)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.ConsumeNonce(ctx, []byte("chave-a"), nonce)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ConsumeNonce(ctx, []byte("chave-b"), nonce)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("pedidos de contato", func(t *testing.T) {
		s := newStore(t)
		alice := mkUser(t, s, "alice")
		bob := mkUser(t, s, "bob")
		carol := mkUser(t, s, "carol")

		req := mkRequest(t, s, alice, "bob")
		other := mkRequest(t, s, carol, "bob")

		pending, err := s.ListPendingRequestsFor(ctx, bob.ID, "bob")
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		require.NoError(t, s.ResolveContactRequest(ctx, req.ID, bob.ID, models.ContactRequestAccepted))
		assert.ErrorIs(t, s.ResolveContactRequest(ctx, req.ID, bob.ID, models.ContactRequestAccepted), ErrNotPending)
		assert.ErrorIs(t, s.ResolveContactRequest(ctx, uuid.New(), bob.ID, models.ContactRequestDeclined), ErrNotFound)

		got, err := s.GetContactRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ContactRequestAccepted, got.Status)
		require.NotNil(t, got.RecipientID)
		assert.Equal(t, bob.ID, *got.RecipientID)

		for _, pair := range [][2]uuid.UUID{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
			ok, err := s.IsContact(ctx, pair[0], pair[1])
			require.NoError(t, err)
			assert.True(t, ok)
		}

		require.NoError(t, s.ResolveContactRequest(ctx, other.ID, bob.ID, models.ContactRequestDeclined))
		ok, err := s.IsContact(ctx, bob.ID, carol.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		pending, err = s.ListPendingRequestsFor(ctx, bob.ID, "bob")
		require.NoError(t, err)
		assert.Empty(t, pending)

		contacts, err := s.ListContacts(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, contacts, 1)
		assert.Equal(t, "alice", contacts[0].Handle)
	})

	t.Run("aceite repetido não duplica arestas", func(t *testing.T) {
		s := newStore(t)
		alice := mkUser(t, s, "alice")
		bob := mkUser(t, s, "bob")

		first := mkRequest(t, s, alice, "bob")
		second := mkRequest(t, s, alice, "bob")
		require.NoError(t, s.ResolveContactRequest(ctx, first.ID, bob.ID, models.ContactRequestAccepted))
		require.NoError(t, s.ResolveContactRequest(ctx, second.ID, bob.ID, models.ContactRequestAccepted))

		contacts, err := s.ListContacts(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, contacts, 1)
	})

	t.Run("conversas e mensagens", func(t *testing.T) {
		s := newStore(t)
		alice := mkUser(t, s, "alice")
		bob := mkUser(t, s, "bob")

		a, b := alice.ID, bob.ID
		if b.String() < a.String() {
			a, b = b, a
		}
		key := fmt.Sprintf("%s:%s", a, b)
		c1, err := s.GetOrCreateConversation(ctx, key, a, b)
		require.NoError(t, err)
		c2, err := s.GetOrCreateConversation(ctx, key, a, b)
		require.NoError(t, err)
		assert.Equal(t, c1.ID, c2.ID)

		convs, err := s.ListConversationsFor(ctx, bob.ID)
		require.NoError(t, err)
		assert.Len(t, convs, 1)

		send := func(from, to *models.User, tMs int64) *models.Message {
			m := &models.Message{
				SenderID:       from.ID,
				RecipientID:    to.ID,
				ConversationID: c1.ID,
				TMs:            tMs,
				Nonce:          []byte("0123456789abcdef"),
				KEMCiphertext:  []byte("ck"),
				AEADCiphertext: []byte("cm"),
				Signature:      []byte("s"),
				CreatedAt:      time.Now().UTC(),
			}
			require.NoError(t, s.CreateMessage(ctx, m))
			return m
		}

		m1 := send(alice, bob, 2000)
		m2 := send(bob, alice, 1000)
		m3 := send(alice, bob, 2000)
		assert.Less(t, m1.ID, m2.ID)
		assert.Less(t, m2.ID, m3.ID)

		all, err := s.MessagesSince(ctx, c1.ID, 0, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{m2.ID, m1.ID, m3.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

		rest, err := s.MessagesSince(ctx, c1.ID, 2000, m1.ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, m3.ID, rest[0].ID)

		limited, err := s.MessagesSince(ctx, c1.ID, 0, 0, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		last, err := s.LastMessages(ctx, c1.ID, 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, m1.ID, last[0].ID)
		assert.Equal(t, m3.ID, last[1].ID)

		latest, err := s.LatestMessage(ctx, c1.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, m2.ID, latest.ID)
		latest, err = s.LatestMessage(ctx, c1.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, m3.ID, latest.ID)

		n, err := s.CountInboundAfter(ctx, c1.ID, bob.ID, 2000, m1.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.CountInboundAfter(ctx, c1.ID, bob.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		inbox, err := s.ListInbox(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, inbox, 2)
		assert.Equal(t, m3.ID, inbox[0].ID)

		outbox, err := s.ListOutbox(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, outbox, 1)
		assert.Equal(t, m2.ID, outbox[0].ID)

		got, err := s.GetMessage(ctx, m2.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), got.TMs)
		_, err = s.GetMessage(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.LatestMessage(ctx, uuid.New(), uuid.Nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cursores", func(t *testing.T) {
		s := newStore(t)
		alice := mkUser(t, s, "alice")
		bob := mkUser(t, s, "bob")
		c, err := s.GetOrCreateConversation(ctx, "k", alice.ID, bob.ID)
		require.NoError(t, err)

		_, err = s.GetReadCursor(ctx, c.ID, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.EnsureReadCursor(ctx, c.ID, bob.ID))
		cur, err := s.GetReadCursor(ctx, c.ID, bob.ID)
		require.NoError(t, err)
		assert.Zero(t, cur.LastReadMessageID)

		require.NoError(t, s.UpsertReadCursor(ctx, &models.ReadCursor{ConversationID: c.ID, UserID: bob.ID, LastReadMessageID: 7, UpdatedAt: time.Now()}))
		require.NoError(t, s.EnsureReadCursor(ctx, c.ID, bob.ID))
		cur, err = s.GetReadCursor(ctx, c.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), cur.LastReadMessageID)
	})
}
