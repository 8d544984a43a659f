package client

import (
	"context"
	"fmt"
	"time"

	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/wire"

	"github.com/google/uuid"
)

// Identity é a identidade local: handle mais os dois pares de chaves.
// As chaves secretas nunca saem do processo.
type Identity struct {
	Handle string
	Keys   *pqcrypto.IdentityKeys

	now func() time.Time
}

// NewIdentity gera chaves novas para o handle
func NewIdentity(handle string) (*Identity, error) {
	keys, err := pqcrypto.GenerateIdentityKeys()
	if err != nil {
		return nil, err
	}
	return &Identity{Handle: handle, Keys: keys, now: time.Now}, nil
}

// envelope assina pack(t, n, fields...) com um nonce novo
func (id *Identity) envelope(fields ...[]byte) (int64, []byte, []byte, error) {
	nonce, err := pqcrypto.RandomBytes(models.NonceSize)
	if err != nil {
		return 0, nil, nil, err
	}
	return id.envelopeWith(nonce, fields...)
}

func (id *Identity) envelopeWith(nonce []byte, fields ...[]byte) (int64, []byte, []byte, error) {
	now := time.Now
	if id.now != nil {
		now = id.now
	}
	tMs := now().UnixMilli()
	sig, err := pqcrypto.Sign(id.Keys.SigningSecretKey, envelope.Pack(tMs, nonce, fields...))
	if err != nil {
		return 0, nil, nil, err
	}
	return tMs, nonce, sig, nil
}

// Register executa as duas etapas do registro: prova a posse da chave KEM
// (K' derivado do segredo decapsulado) e da chave de assinatura (assinatura de m).
func (id *Identity) Register(ctx context.Context, c *Client) (uuid.UUID, error) {
	started, err := c.RegisterInit(ctx, wire.RegisterInitRequest{
		Handle:           id.Handle,
		SigningPublicKey: pqcrypto.ToBase64URL(id.Keys.SigningPublicKey),
		KEMPublicKey:     pqcrypto.ToBase64URL(id.Keys.KEMPublicKey),
	})
	if err != nil {
		return uuid.Nil, err
	}

	m, err := pqcrypto.FromBase64URL(started.M)
	if err != nil {
		return uuid.Nil, fmt.Errorf("desafio 'm' inválido: %w", err)
	}
	ct, err := pqcrypto.FromBase64URL(started.Ciphertext)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ciphertext inválido: %w", err)
	}

	ss, err := pqcrypto.Decapsulate(id.Keys.KEMSecretKey, ct)
	if err != nil {
		return uuid.Nil, err
	}
	sig, err := pqcrypto.Sign(id.Keys.SigningSecretKey, m)
	if err != nil {
		return uuid.Nil, err
	}

	res, err := c.RegisterVerify(ctx, wire.RegisterVerifyRequest{
		Handle:    id.Handle,
		Nonce:     started.Nonce,
		Signature: pqcrypto.ToBase64URL(sig),
		KPrime:    pqcrypto.ToBase64URL(pqcrypto.DeriveKPrime(ss)),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return res.UserID, nil
}

// Login assina o desafio e deixa o token de sessão no cliente
func (id *Identity) Login(ctx context.Context, c *Client) error {
	chal, err := c.LoginChallenge(ctx, id.Handle)
	if err != nil {
		return err
	}

	challenge, err := pqcrypto.FromBase64URL(chal.Challenge)
	if err != nil {
		return fmt.Errorf("desafio inválido: %w", err)
	}
	sig, err := pqcrypto.Sign(id.Keys.SigningSecretKey, challenge)
	if err != nil {
		return err
	}

	_, err = c.LoginSubmit(ctx, wire.LoginSubmitRequest{
		Nonce:     chal.Nonce,
		Signature: pqcrypto.ToBase64URL(sig),
	})
	return err
}

// RequestContact busca a chave publicada do destinatário e envia o pedido
// assinado sobre pack(t, n, ps do destinatário)
func (id *Identity) RequestContact(ctx context.Context, c *Client, handle, note string) (*wire.ContactRequestCreated, error) {
	peer, err := c.UserKey(ctx, handle)
	if err != nil {
		return nil, err
	}
	peerPS, err := pqcrypto.FromBase64URL(peer.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("chave publicada inválida: %w", err)
	}

	tMs, nonce, sig, err := id.envelope(peerPS)
	if err != nil {
		return nil, err
	}
	return c.CreateContactRequest(ctx, wire.ContactRequestCreate{
		Handle:               handle,
		Note:                 note,
		T:                    tMs,
		Nonce:                pqcrypto.ToBase64URL(nonce),
		Signature:            pqcrypto.ToBase64URL(sig),
		PeerSigningPublicKey: peer.SigningPublicKey,
	})
}

// Accept aceita o pedido com uma segunda prova, assinada sobre a chave do solicitante
func (id *Identity) Accept(ctx context.Context, c *Client, req wire.PendingRequest) error {
	requesterPS, err := pqcrypto.FromBase64URL(req.FromSigningPublicKey)
	if err != nil {
		return fmt.Errorf("chave do solicitante inválida: %w", err)
	}

	tMs, nonce, sig, err := id.envelope(requesterPS)
	if err != nil {
		return err
	}
	_, err = c.RespondContactRequest(ctx, req.ID.String(), wire.ContactRespond{
		Decision:  "accept",
		T:         tMs,
		Nonce:     pqcrypto.ToBase64URL(nonce),
		Signature: pqcrypto.ToBase64URL(sig),
	})
	return err
}

func (id *Identity) Decline(ctx context.Context, c *Client, req wire.PendingRequest) error {
	_, err := c.RespondContactRequest(ctx, req.ID.String(), wire.ContactRespond{Decision: "decline"})
	return err
}

// SendText cifra o texto para o destinatário e envia o envelope assinado
// sobre pack(t, n, ck, cm). O nonce do envelope é o mesmo do AES-GCM.
func (id *Identity) SendText(ctx context.Context, c *Client, peer wire.UserKey, text string) (*wire.MessageCreated, error) {
	peerPK, err := pqcrypto.FromBase64URL(peer.KEMPublicKey)
	if err != nil {
		return nil, fmt.Errorf("chave KEM do destinatário inválida: %w", err)
	}

	sealed, err := pqcrypto.SealMessage(pqcrypto.NewSuite(), peerPK, []byte(text))
	if err != nil {
		return nil, err
	}
	tMs, nonce, sig, err := id.envelopeWith(sealed.Nonce, sealed.KEMCiphertext, sealed.AEADCiphertext)
	if err != nil {
		return nil, err
	}

	return c.SendMessage(ctx, wire.MessageCreate{
		ToHandle:       peer.Handle,
		T:              tMs,
		Nonce:          pqcrypto.ToBase64URL(nonce),
		KEMCiphertext:  pqcrypto.ToBase64URL(sealed.KEMCiphertext),
		AEADCiphertext: pqcrypto.ToBase64URL(sealed.AEADCiphertext),
		Signature:      pqcrypto.ToBase64URL(sig),
	})
}

// Open decifra uma mensagem recebida
func (id *Identity) Open(m wire.Message) (string, error) {
	nonce, err := pqcrypto.FromBase64URL(m.Nonce)
	if err != nil {
		return "", err
	}
	ck, err := pqcrypto.FromBase64URL(m.KEMCiphertext)
	if err != nil {
		return "", err
	}
	cm, err := pqcrypto.FromBase64URL(m.AEADCiphertext)
	if err != nil {
		return "", err
	}
	plain, err := pqcrypto.OpenMessage(id.Keys.KEMSecretKey, nonce, ck, cm)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// VerifyMessage confere a assinatura do remetente sobre pack(t, n, ck, cm)
func VerifyMessage(senderSigningPublicKey []byte, m wire.Message) bool {
	nonce, err1 := pqcrypto.FromBase64URL(m.Nonce)
	ck, err2 := pqcrypto.FromBase64URL(m.KEMCiphertext)
	cm, err3 := pqcrypto.FromBase64URL(m.AEADCiphertext)
	sig, err4 := pqcrypto.FromBase64URL(m.Signature)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return pqcrypto.NewSuite().Verify(senderSigningPublicKey, envelope.Pack(m.T, nonce, ck, cm), sig)
}
