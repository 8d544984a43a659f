package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/repository"
	"pqchat-backend/internal/wire"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Caixas aceitas por Mailbox
const (
	BoxInbox  = "inbox"
	BoxOutbox = "outbox"
)

// MessageService lida com o envio de mensagens e com as caixas de entrada/saída
type MessageService struct {
	store         conversationStore
	conversations *ConversationService
	gate          *envelope.Gate
	broker        pubsub.Broker
	now           func() time.Time
	log           zerolog.Logger
}

// NewMessageService cria um novo serviço de mensagens. broker pode ser nil.
func NewMessageService(store conversationStore, conversations *ConversationService, gate *envelope.Gate, broker pubsub.Broker, log zerolog.Logger) *MessageService {
	return &MessageService{
		store:         store,
		conversations: conversations,
		gate:          gate,
		broker:        broker,
		now:           time.Now,
		log:           log,
	}
}

// SendMessageRequest define os parâmetros de uma mensagem.
// A assinatura cobre pack(t, nonce, kem_ciphertext, aead_ciphertext).
type SendMessageRequest struct {
	ToHandle       string
	TMs            int64
	Nonce          []byte
	KEMCiphertext  []byte
	AEADCiphertext []byte
	Signature      []byte
}

// Send valida o envelope do remetente, grava a mensagem na conversa canônica
// e publica um aviso no tópico da conversa
func (s *MessageService) Send(ctx context.Context, sender *models.User, req SendMessageRequest) (*models.Message, error) {
	if len(req.KEMCiphertext) == 0 || len(req.AEADCiphertext) == 0 {
		return nil, apperrors.Validation("ck_b64 e cm_b64 são obrigatórios")
	}

	// 1. Encontrar o destinatário
	recipient, err := s.store.GetUserByHandle(ctx, req.ToHandle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("destinatário não encontrado")
		}
		return nil, apperrors.Internal("falha ao buscar destinatário", err)
	}

	// 2. Só contatos estabelecidos podem trocar mensagens
	ok, err := s.store.IsContact(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, apperrors.Internal("falha ao consultar agenda", err)
	}
	if !ok {
		return nil, apperrors.ErrNotAContact
	}

	// 3. Validade, assinatura e nonce, nessa ordem
	if err := s.gate.Check(ctx, sender.SigningPublicKey, req.TMs, req.Nonce, req.Signature, req.KEMCiphertext, req.AEADCiphertext); err != nil {
		s.log.Info().Str("handle", sender.Handle).Str("kind", string(apperrors.KindOf(err))).Msg("mensagem recusada")
		return nil, err
	}

	conv, err := s.conversations.ConversationFor(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		ConversationID: conv.ID,
		TMs:            req.TMs,
		Nonce:          req.Nonce,
		KEMCiphertext:  req.KEMCiphertext,
		AEADCiphertext: req.AEADCiphertext,
		Signature:      req.Signature,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperrors.Internal("falha ao salvar mensagem", err)
	}

	s.publish(msg, sender.Handle, recipient.Handle)
	s.log.Debug().Int64("id", msg.ID).Str("conversation_id", conv.ID.String()).Msg("mensagem gravada")
	return msg, nil
}

// publish é best-effort: falhas só vão para o log
func (s *MessageService) publish(msg *models.Message, from, to string) {
	if s.broker == nil {
		return
	}
	payload, err := json.Marshal(wire.NewMessage(msg, from, to))
	if err != nil {
		s.log.Warn().Err(err).Msg("falha ao serializar aviso de mensagem")
		return
	}
	s.broker.Publish(pubsub.ChatTopic(msg.ConversationID), payload)
}

// Mailbox lista as mensagens recebidas (inbox) ou enviadas (outbox), mais recentes primeiro
func (s *MessageService) Mailbox(ctx context.Context, user *models.User, box string) ([]*models.Message, error) {
	var (
		msgs []*models.Message
		err  error
	)
	switch box {
	case "", BoxInbox:
		msgs, err = s.store.ListInbox(ctx, user.ID)
	case BoxOutbox:
		msgs, err = s.store.ListOutbox(ctx, user.ID)
	default:
		return nil, apperrors.Validation("box deve ser inbox ou outbox")
	}
	if err != nil {
		return nil, apperrors.Internal("falha ao buscar mensagens", err)
	}
	return msgs, nil
}

// Present converte mensagens para o formato público, resolvendo os handles.
// Mensagens com participante inexistente são puladas.
func (s *MessageService) Present(ctx context.Context, msgs []*models.Message) []wire.Message {
	handles := make(map[uuid.UUID]string)
	handleOf := func(id uuid.UUID) (string, bool) {
		if h, ok := handles[id]; ok {
			return h, true
		}
		u, err := s.store.GetUserByID(ctx, id)
		if err != nil {
			return "", false
		}
		handles[id] = u.Handle
		return u.Handle, true
	}

	out := make([]wire.Message, 0, len(msgs))
	for _, m := range msgs {
		from, ok1 := handleOf(m.SenderID)
		to, ok2 := handleOf(m.RecipientID)
		if !ok1 || !ok2 {
			s.log.Warn().Int64("id", m.ID).Msg("mensagem com participante inexistente")
			continue
		}
		out = append(out, wire.NewMessage(m, from, to))
	}
	return out
}
