package models

import (
	"time"

	"github.com/google/uuid"
)

// NonceSize é o tamanho fixo (em bytes) do nonce de cada envelope assinado
const NonceSize = 16

// User representa uma identidade registrada (handle + chaves públicas).
// As chaves são imutáveis após o registro.
type User struct {
	ID               uuid.UUID `json:"id"`
	Handle           string    `json:"handle"`
	SigningPublicKey []byte    `json:"-"`
	KEMPublicKey     []byte    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NonceRecord é a lápide de um envelope aceito: (chave do signatário, nonce)
type NonceRecord struct {
	SignerPublicKey []byte
	Nonce           []byte
	SeenAt          time.Time
}

// ContactRequestStatus representa o estado de um pedido de contato
type ContactRequestStatus string

const (
	ContactRequestPending  ContactRequestStatus = "pending"
	ContactRequestAccepted ContactRequestStatus = "accepted"
	ContactRequestDeclined ContactRequestStatus = "declined"
)

// ContactRequest é um pedido de contato assinado pelo solicitante
type ContactRequest struct {
	ID              uuid.UUID            `json:"id"`
	RequesterID     uuid.UUID            `json:"requesterId"`
	RecipientHandle string               `json:"recipientHandle"`
	RecipientID     *uuid.UUID           `json:"recipientId,omitempty"` // nil enquanto o destinatário não responde
	Note            string               `json:"note"`
	Status          ContactRequestStatus `json:"status"`
	TMs             int64                `json:"t"`
	Nonce           []byte               `json:"-"`
	Signature       []byte               `json:"-"`
	RequesterPubKey []byte               `json:"-"` // chave de assinatura do solicitante no momento do pedido
	CreatedAt       time.Time            `json:"createdAt"`
}

// Contact é uma aresta direcionada do catálogo de endereços
type Contact struct {
	UserID        uuid.UUID `json:"userId"`
	ContactUserID uuid.UUID `json:"contactUserId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Conversation identifica o par não ordenado (A, B) com A < B
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	AID       uuid.UUID `json:"aId"`
	BID       uuid.UUID `json:"bId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PeerFor retorna o outro participante da conversa
func (c *Conversation) PeerFor(userID uuid.UUID) uuid.UUID {
	if userID == c.AID {
		return c.BID
	}
	return c.AID
}

// HasParticipant diz se o usuário é A ou B
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return userID == c.AID || userID == c.BID
}

// Message é um envelope cifrado e assinado. A ordem total é (TMs, ID).
type Message struct {
	ID             int64     `json:"id"`
	SenderID       uuid.UUID `json:"senderId"`
	RecipientID    uuid.UUID `json:"recipientId"`
	ConversationID uuid.UUID `json:"conversationId"`
	TMs            int64     `json:"t"`
	Nonce          []byte    `json:"-"`
	KEMCiphertext  []byte    `json:"-"`
	AEADCiphertext []byte    `json:"-"`
	Signature      []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// After diz se m vem estritamente depois do cursor (t, id)
func (m *Message) After(t, id int64) bool {
	return m.TMs > t || (m.TMs == t && m.ID > id)
}

// ReadCursor guarda apenas o ID da última mensagem lida; o t_ms é derivado
type ReadCursor struct {
	ConversationID    uuid.UUID `json:"conversationId"`
	UserID            uuid.UUID `json:"userId"`
	LastReadMessageID int64     `json:"lastReadMessageId"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ConversationSummary é uma linha do resumo de não lidas
type ConversationSummary struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	PeerHandle     string    `json:"peer"`
	Unread         int       `json:"unread"`
	LastTMs        int64     `json:"last_t"`
}
