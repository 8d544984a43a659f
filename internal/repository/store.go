package repository

import (
	"context"
	"errors"

	"pqchat-backend/internal/models"

	"github.com/google/uuid"
)

// Erros de domínio devolvidos pelas implementações de Store
var (
	ErrNotFound    = errors.New("registro não encontrado")
	ErrHandleTaken = errors.New("handle já existe")
	ErrDuplicate   = errors.New("registro duplicado")
	ErrNotPending  = errors.New("pedido não está pendente")
)

// IdentityStore define as operações do registro de identidades
type IdentityStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByHandle(ctx context.Context, handle string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// NonceStore é o livro-razão de nonces (insert-if-absent)
type NonceStore interface {
	ConsumeNonce(ctx context.Context, signerPublicKey, nonce []byte) (bool, error)
}

// ContactStore define as operações de pedidos de contato e agenda
type ContactStore interface {
	CreateContactRequest(ctx context.Context, req *models.ContactRequest) error
	GetContactRequest(ctx context.Context, id uuid.UUID) (*models.ContactRequest, error)
	// ListPendingRequestsFor lista pedidos pendentes endereçados ao id OU ao handle
	ListPendingRequestsFor(ctx context.Context, userID uuid.UUID, handle string) ([]*models.ContactRequest, error)
	// ResolveContactRequest muda pending -> status numa única transação, vincula o
	// destinatário e, se aceito, cria as duas arestas. ErrNotPending se já resolvido.
	ResolveContactRequest(ctx context.Context, id, recipientID uuid.UUID, status models.ContactRequestStatus) error
	IsContact(ctx context.Context, userID, contactUserID uuid.UUID) (bool, error)
	ListContacts(ctx context.Context, userID uuid.UUID) ([]*models.User, error)
}

// ConversationStore define as operações de conversas
type ConversationStore interface {
	// GetOrCreateConversation recebe o par já canônico (a < b)
	GetOrCreateConversation(ctx context.Context, key string, a, b uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsFor(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
}

// MessageStore define as operações de mensagens
type MessageStore interface {
	// CreateMessage atribui o ID (monotônico) e grava a mensagem
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	// MessagesSince devolve mensagens estritamente após (afterT, afterID), em ordem (t, id)
	MessagesSince(ctx context.Context, conversationID uuid.UUID, afterT, afterID int64, limit int) ([]*models.Message, error)
	// LastMessages devolve as n últimas mensagens em ordem ascendente
	LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*models.Message, error)
	// LatestMessage devolve a última mensagem da conversa; se recipientID != uuid.Nil, só as endereçadas a ele
	LatestMessage(ctx context.Context, conversationID, recipientID uuid.UUID) (*models.Message, error)
	CountInboundAfter(ctx context.Context, conversationID, recipientID uuid.UUID, afterT, afterID int64) (int, error)
	ListInbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
	ListOutbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
}

// CursorStore define as operações do cursor de leitura
type CursorStore interface {
	// EnsureReadCursor cria o cursor (zerado) se ainda não existir
	EnsureReadCursor(ctx context.Context, conversationID, userID uuid.UUID) error
	UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error
	GetReadCursor(ctx context.Context, conversationID, userID uuid.UUID) (*models.ReadCursor, error)
}

// Store é uma interface agregada para todas as operações de store
// Facilita a injeção de dependência
type Store interface {
	IdentityStore
	NonceStore
	ContactStore
	ConversationStore
	MessageStore
	CursorStore
}
