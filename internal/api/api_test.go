package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"pqchat-backend/internal/auth"
	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/repository"
	"pqchat-backend/internal/service"
	"pqchat-backend/internal/wire"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	store := repository.NewInMemoryStore()
	suite := pqcrypto.NewSuite()
	hub := pubsub.NewHub(8, log)
	gate := envelope.NewGate(suite, store)

	tokens, err := auth.NewTokenService("segredo-de-teste", time.Hour)
	require.NoError(t, err)

	registration := service.NewRegistrationService(store, suite, 0, log)
	login := service.NewLoginService(store, suite, tokens, 0, time.Millisecond, log)
	conversations := service.NewConversationService(store, log)
	t.Cleanup(registration.Close)
	t.Cleanup(login.Close)

	h := NewHandler(Services{
		Registration:  registration,
		Login:         login,
		Users:         service.NewUserService(store),
		Contacts:      service.NewContactService(store, gate, log),
		Conversations: conversations,
		Messages:      service.NewMessageService(store, conversations, gate, hub, log),
	}, tokens, hub, []string{"http://localhost:3000"}, log)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, t: t}
}

func (s *testServer) do(method, path, token string, body, out interface{}) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type account struct {
	handle string
	keys   *pqcrypto.IdentityKeys
	token  string
}

func (a *account) envelope(t *testing.T, fields ...[]byte) (int64, string, string) {
	t.Helper()
	nonce, err := pqcrypto.RandomBytes(16)
	require.NoError(t, err)
	return a.envelopeWith(t, nonce, fields...)
}

func (a *account) envelopeWith(t *testing.T, nonce []byte, fields ...[]byte) (int64, string, string) {
	t.Helper()
	tMs := time.Now().UnixMilli()
	sig, err := pqcrypto.Sign(a.keys.SigningSecretKey, envelope.Pack(tMs, nonce, fields...))
	require.NoError(t, err)
	return tMs, pqcrypto.ToBase64URL(nonce), pqcrypto.ToBase64URL(sig)
}

// signup registra e faz login pela API
func (s *testServer) signup(handle string) *account {
	t := s.t
	t.Helper()
	keys, err := pqcrypto.GenerateIdentityKeys()
	require.NoError(t, err)

	var initResp wire.RegisterInitResponse
	code := s.do(http.MethodPost, "/v1/register/init", "", wire.RegisterInitRequest{
		Handle:           handle,
		SigningPublicKey: pqcrypto.ToBase64URL(keys.SigningPublicKey),
		KEMPublicKey:     pqcrypto.ToBase64URL(keys.KEMPublicKey),
	}, &initResp)
	require.Equal(t, http.StatusOK, code)

	m, err := pqcrypto.FromBase64URL(initResp.M)
	require.NoError(t, err)
	ct, err := pqcrypto.FromBase64URL(initResp.Ciphertext)
	require.NoError(t, err)
	ss, err := pqcrypto.Decapsulate(keys.KEMSecretKey, ct)
	require.NoError(t, err)
	sig, err := pqcrypto.Sign(keys.SigningSecretKey, m)
	require.NoError(t, err)

	var verifyResp wire.RegisterVerifyResponse
	code = s.do(http.MethodPost, "/v1/register/verify", "", wire.RegisterVerifyRequest{
		Handle:    handle,
		Nonce:     initResp.Nonce,
		Signature: pqcrypto.ToBase64URL(sig),
		KPrime:    pqcrypto.ToBase64URL(pqcrypto.DeriveKPrime(ss)),
	}, &verifyResp)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, verifyResp.Verified)

	var ch wire.LoginChallengeResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/login/challenge", "", wire.LoginChallengeRequest{Handle: handle}, &ch))
	challenge, err := pqcrypto.FromBase64URL(ch.Challenge)
	require.NoError(t, err)
	sig, err = pqcrypto.Sign(keys.SigningSecretKey, challenge)
	require.NoError(t, err)

	var session wire.LoginSubmitResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/login/submit", "", wire.LoginSubmitRequest{
		Nonce:     ch.Nonce,
		Signature: pqcrypto.ToBase64URL(sig),
	}, &session))
	require.NotEmpty(t, session.Token)

	return &account{handle: handle, keys: keys, token: session.Token}
}

func (s *testServer) befriend(a, b *account) {
	t := s.t
	t.Helper()
	tMs, n, sig := a.envelope(t, b.keys.SigningPublicKey)
	var created wire.ContactRequestCreated
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/contacts/requests", a.token, wire.ContactRequestCreate{
		Handle:               b.handle,
		T:                    tMs,
		Nonce:                n,
		Signature:            sig,
		PeerSigningPublicKey: pqcrypto.ToBase64URL(b.keys.SigningPublicKey),
	}, &created))

	tMs, n, sig = b.envelope(t, a.keys.SigningPublicKey)
	var resp wire.ContactRespondResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/contacts/requests/"+created.ID.String()+"/respond", b.token,
		wire.ContactRespond{Decision: "accept", T: tMs, Nonce: n, Signature: sig}, &resp))
	require.Equal(t, "accepted", resp.Status)
}

func (s *testServer) sendMessage(from, to *account, text string) wire.MessageCreated {
	t := s.t
	t.Helper()
	sealed, err := pqcrypto.SealMessage(pqcrypto.NewSuite(), to.keys.KEMPublicKey, []byte(text))
	require.NoError(t, err)
	// o nonce do envelope é o mesmo que deu o IV da cifra
	tMs, n, sig := from.envelopeWith(t, sealed.Nonce, sealed.KEMCiphertext, sealed.AEADCiphertext)

	var created wire.MessageCreated
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/messages", from.token, wire.MessageCreate{
		ToHandle:       to.handle,
		T:              tMs,
		Nonce:          n,
		KEMCiphertext:  pqcrypto.ToBase64URL(sealed.KEMCiphertext),
		AEADCiphertext: pqcrypto.ToBase64URL(sealed.AEADCiphertext),
		Signature:      sig,
	}, &created))
	return created
}

func TestRegisterLoginAndSession(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	var who wire.SessionResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/session", alice.token, nil, &who))
	assert.Equal(t, "alice", who.Handle)

	var key wire.UserKey
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/users/alice/key", alice.token, nil, &key))
	assert.Equal(t, pqcrypto.ToBase64URL(alice.keys.KEMPublicKey), key.KEMPublicKey)
}

func TestErrorBodies(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		code   int
		kind   string
	}{
		{"sem token", http.MethodGet, "/v1/session", "", nil, http.StatusUnauthorized, "unauthorized"},
		{"token inválido", http.MethodGet, "/v1/session", "lixo", nil, http.StatusUnauthorized, "unauthorized"},
		{"base64 inválido", http.MethodPost, "/v1/login/submit", "", wire.LoginSubmitRequest{Nonce: "***", Signature: "AA"}, http.StatusBadRequest, "validation"},
		{"campo ausente", http.MethodPost, "/v1/register/init", "", wire.RegisterInitRequest{Handle: "bob"}, http.StatusBadRequest, "validation"},
		{"desafio inexistente", http.MethodPost, "/v1/login/submit", "", wire.LoginSubmitRequest{Nonce: "AAAA", Signature: "AAAA"}, http.StatusBadRequest, "expired"},
		{"handle desconhecido", http.MethodGet, "/v1/users/ninguem/key", alice.token, nil, http.StatusNotFound, "not_found"},
		{"caixa inválida", http.MethodGet, "/v1/messages?box=lixeira", alice.token, nil, http.StatusBadRequest, "validation"},
		{"handle com NUL na abertura", http.MethodPost, "/v1/chats/open", alice.token, wire.ChatOpenRequest{Handle: "bob\x00x"}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body wire.ErrorBody
			code := s.do(tt.method, tt.path, tt.token, tt.body, &body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.kind, body.Error.Kind)
		})
	}
}

func TestDuplicateHandleConflict(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice")

	keys, err := pqcrypto.GenerateIdentityKeys()
	require.NoError(t, err)
	var initResp wire.RegisterInitResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/register/init", "", wire.RegisterInitRequest{
		Handle:           "alice",
		SigningPublicKey: pqcrypto.ToBase64URL(keys.SigningPublicKey),
		KEMPublicKey:     pqcrypto.ToBase64URL(keys.KEMPublicKey),
	}, &initResp))

	m, _ := pqcrypto.FromBase64URL(initResp.M)
	ct, _ := pqcrypto.FromBase64URL(initResp.Ciphertext)
	ss, err := pqcrypto.Decapsulate(keys.KEMSecretKey, ct)
	require.NoError(t, err)
	sig, err := pqcrypto.Sign(keys.SigningSecretKey, m)
	require.NoError(t, err)

	var body wire.ErrorBody
	code := s.do(http.MethodPost, "/v1/register/verify", "", wire.RegisterVerifyRequest{
		Handle:    "alice",
		Nonce:     initResp.Nonce,
		Signature: pqcrypto.ToBase64URL(sig),
		KPrime:    pqcrypto.ToBase64URL(pqcrypto.DeriveKPrime(ss)),
	}, &body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "handle_taken", body.Error.Kind)
}

func TestContactsAndChatFlow(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.signup("alice"), s.signup("bob")

	// antes do aceite, mensagens são recusadas
	tMs, n, sig := alice.envelope(t, []byte("ck"), []byte("cm"))
	var errBody wire.ErrorBody
	code := s.do(http.MethodPost, "/v1/messages", alice.token, wire.MessageCreate{
		ToHandle: "bob", T: tMs, Nonce: n, KEMCiphertext: "Y2s", AEADCiphertext: "Y20", Signature: sig,
	}, &errBody)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_a_contact", errBody.Error.Kind)

	s.befriend(alice, bob)

	var show wire.ContactShowResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/contacts/bob", alice.token, nil, &show))
	assert.True(t, show.Contact)

	var contacts []wire.UserKey
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/contacts", bob.token, nil, &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice", contacts[0].Handle)

	var open wire.ChatOpenResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/chats/open", bob.token, wire.ChatOpenRequest{Handle: "alice"}, &open))
	assert.Empty(t, open.History)
	convPath := "/v1/chats/" + open.ConversationID.String()

	first := s.sendMessage(alice, bob, "oi bob")
	second := s.sendMessage(alice, bob, "tudo bem?")
	assert.Equal(t, open.ConversationID, first.ConversationID)

	var summary []struct {
		ConversationID string `json:"conversation_id"`
		Peer           string `json:"peer"`
		Unread         int    `json:"unread"`
		LastT          int64  `json:"last_t"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/chats/summary", bob.token, nil, &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, "alice", summary[0].Peer)
	assert.Equal(t, 2, summary[0].Unread)

	var page []wire.Message
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, convPath+"/messages?limit=1", bob.token, nil, &page))
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	cursor := "?after_t=" + strconv.FormatInt(page[0].T, 10) + "&after_id=" + strconv.FormatInt(page[0].ID, 10)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, convPath+"/messages"+cursor, bob.token, nil, &page))
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	// bob decifra com a própria chave KEM
	nonce, _ := pqcrypto.FromBase64URL(page[0].Nonce)
	ck, _ := pqcrypto.FromBase64URL(page[0].KEMCiphertext)
	cm, _ := pqcrypto.FromBase64URL(page[0].AEADCiphertext)
	plain, err := pqcrypto.OpenMessage(bob.keys.KEMSecretKey, nonce, ck, cm)
	require.NoError(t, err)
	assert.Equal(t, "tudo bem?", string(plain))

	var read wire.ReadResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, convPath+"/read", bob.token, nil, &read))
	assert.Equal(t, second.ID, read.LastReadMessageID)

	var lastRead wire.LastReadResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, convPath+"/last_read", bob.token, nil, &lastRead))
	assert.Equal(t, second.ID, lastRead.LastReadMessageID)
	assert.Equal(t, page[0].T, lastRead.LastReadT)

	var inbox []wire.Message
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages?box=inbox", bob.token, nil, &inbox))
	require.Len(t, inbox, 2)
	assert.Equal(t, second.ID, inbox[0].ID)

	carol := s.signup("carol")
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, convPath+"/messages", carol.token, nil, nil))
}

func TestChatLiveRelaysMessages(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.signup("alice"), s.signup("bob")
	s.befriend(alice, bob)

	var open wire.ChatOpenResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/chats/open", bob.token, wire.ChatOpenRequest{Handle: "alice"}, &open))

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/chats/" + open.ConversationID.String() + "/live"
	header := http.Header{"Authorization": []string{"Bearer " + bob.token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// o Subscribe acontece depois do upgrade; reenvia até o aviso chegar
	got := make(chan wire.Message, 1)
	go func() {
		var m wire.Message
		if err := conn.ReadJSON(&m); err == nil {
			got <- m
		}
	}()

	var created wire.MessageCreated
	assert.Eventually(t, func() bool {
		created = s.sendMessage(alice, bob, "ao vivo")
		select {
		case m := <-got:
			return m.From == "alice" && m.ConversationID == open.ConversationID
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.NotZero(t, created.ID)
}
