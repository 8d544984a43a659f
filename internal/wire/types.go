// Package wire define os schemas JSON trocados entre servidor e cliente.
// Todo campo binário trafega em base64url sem padding.
package wire

import (
	"time"

	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"

	"github.com/google/uuid"
)

// MaxFetchLimit é o maior limit aceito na busca por cursor
const MaxFetchLimit = 1000

// === Registro ===

type (
	RegisterInitRequest struct {
		Handle           string `json:"handle" validate:"required,min=3,max=64"`
		SigningPublicKey string `json:"ps_b64" validate:"required"`
		KEMPublicKey     string `json:"pk_b64" validate:"required"`
	}

	RegisterInitResponse struct {
		M          string `json:"m_b64"`
		Ciphertext string `json:"ct_b64"`
		Nonce      string `json:"nonce_b64"`
	}

	RegisterVerifyRequest struct {
		Handle    string `json:"handle" validate:"required"`
		Nonce     string `json:"nonce_b64" validate:"required"`
		Signature string `json:"sig_b64" validate:"required"`
		KPrime    string `json:"k_prime_b64" validate:"required"`
	}

	RegisterVerifyResponse struct {
		Verified bool      `json:"verified"`
		UserID   uuid.UUID `json:"user_id"`
		Handle   string    `json:"handle"`
	}
)

// === Login ===

type (
	LoginChallengeRequest struct {
		Handle string `json:"handle" validate:"required"`
	}

	LoginChallengeResponse struct {
		Challenge string `json:"challenge_b64"`
		Nonce     string `json:"nonce_b64"`
	}

	LoginSubmitRequest struct {
		Nonce     string `json:"nonce_b64" validate:"required"`
		Signature string `json:"sig_b64" validate:"required"`
	}

	LoginSubmitResponse struct {
		OK     bool      `json:"ok"`
		UserID uuid.UUID `json:"user_id"`
		Handle string    `json:"handle"`
		Token  string    `json:"token"`
	}

	SessionResponse struct {
		UserID uuid.UUID `json:"user_id"`
		Handle string    `json:"handle"`
	}
)

// === Chaves e contatos ===

type (
	// UserKey é a chave pública publicada de um usuário
	UserKey struct {
		Handle           string     `json:"handle"`
		UserID           uuid.UUID  `json:"user_id"`
		SigningPublicKey string     `json:"ps_b64"`
		KEMPublicKey     string     `json:"pk_b64"`
		AddedAt          *time.Time `json:"added_at,omitempty"`
	}

	ContactShowResponse struct {
		Handle           string    `json:"handle"`
		UserID           uuid.UUID `json:"user_id"`
		Contact          bool      `json:"contact"`
		SigningPublicKey string    `json:"ps_b64"`
		KEMPublicKey     string    `json:"pk_b64"`
	}

	ContactRequestCreate struct {
		Handle               string `json:"handle" validate:"required"`
		Note                 string `json:"note" validate:"max=500"`
		T                    int64  `json:"t"`
		Nonce                string `json:"n_b64" validate:"required"`
		Signature            string `json:"s_b64" validate:"required"`
		PeerSigningPublicKey string `json:"peer_ps_b64" validate:"required"`
	}

	ContactRequestCreated struct {
		ID              uuid.UUID `json:"id"`
		Status          string    `json:"status"`
		RecipientHandle string    `json:"recipient_handle"`
	}

	// PendingRequest é um pedido pendente visto pelo destinatário
	PendingRequest struct {
		ID                   uuid.UUID `json:"id"`
		From                 string    `json:"from"`
		FromSigningPublicKey string    `json:"from_ps_b64"`
		Note                 string    `json:"note"`
		At                   time.Time `json:"at"`
	}

	// ContactRespond carrega a decisão. Aceite exige t, n_b64 e s_b64.
	ContactRespond struct {
		Decision  string `json:"decision" validate:"required,oneof=accept decline"`
		T         int64  `json:"t,omitempty"`
		Nonce     string `json:"n_b64,omitempty"`
		Signature string `json:"s_b64,omitempty"`
	}

	ContactRespondResponse struct {
		OK     bool   `json:"ok"`
		Status string `json:"status"`
	}
)

// === Mensagens ===

type (
	MessageCreate struct {
		ToHandle       string `json:"to_handle" validate:"required"`
		T              int64  `json:"t"`
		Nonce          string `json:"n_b64" validate:"required"`
		KEMCiphertext  string `json:"ck_b64" validate:"required"`
		AEADCiphertext string `json:"cm_b64" validate:"required"`
		Signature      string `json:"s_b64" validate:"required"`
	}

	MessageCreated struct {
		ID             int64     `json:"id"`
		OK             bool      `json:"ok"`
		ConversationID uuid.UUID `json:"conversation_id"`
	}

	// Message é a forma pública de uma mensagem (API e canal ao vivo)
	Message struct {
		ID             int64     `json:"id"`
		From           string    `json:"from"`
		To             string    `json:"to"`
		ConversationID uuid.UUID `json:"conversation_id"`
		T              int64     `json:"t"`
		Nonce          string    `json:"n_b64"`
		KEMCiphertext  string    `json:"ck_b64"`
		AEADCiphertext string    `json:"cm_b64"`
		Signature      string    `json:"s_b64"`
		CreatedAt      time.Time `json:"created_at"`
	}
)

// === Conversas ===

type (
	ChatOpenRequest struct {
		Handle string `json:"handle" validate:"required"`
	}

	ChatOpenResponse struct {
		ConversationID uuid.UUID `json:"conversation_id"`
		Peer           UserKey   `json:"peer"`
		History        []Message `json:"history"`
	}

	ReadResponse struct {
		LastReadMessageID int64 `json:"last_read_message_id"`
	}

	LastReadResponse struct {
		LastReadMessageID int64 `json:"last_read_message_id"`
		LastReadT         int64 `json:"last_read_t"`
	}
)

// ErrorBody é o corpo padrão de erro
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewMessage converte a mensagem persistida, resolvendo os handles pelo chamador
func NewMessage(m *models.Message, from, to string) Message {
	return Message{
		ID:             m.ID,
		From:           from,
		To:             to,
		ConversationID: m.ConversationID,
		T:              m.TMs,
		Nonce:          pqcrypto.ToBase64URL(m.Nonce),
		KEMCiphertext:  pqcrypto.ToBase64URL(m.KEMCiphertext),
		AEADCiphertext: pqcrypto.ToBase64URL(m.AEADCiphertext),
		Signature:      pqcrypto.ToBase64URL(m.Signature),
		CreatedAt:      m.CreatedAt,
	}
}

// NewUserKey converte um usuário em chave pública publicada
func NewUserKey(u *models.User) UserKey {
	return UserKey{
		Handle:           u.Handle,
		UserID:           u.ID,
		SigningPublicKey: pqcrypto.ToBase64URL(u.SigningPublicKey),
		KEMPublicKey:     pqcrypto.ToBase64URL(u.KEMPublicKey),
	}
}
