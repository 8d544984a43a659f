package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/repository"
	"pqchat-backend/internal/wire"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultFetchLimit é o limite de fetch_since quando não informado
	DefaultFetchLimit = 200
	// MaxFetchLimit é o teto de fetch_since
	MaxFetchLimit = wire.MaxFetchLimit
	// OpenHistorySize é quantas mensagens o open devolve
	OpenHistorySize = 50
)

type conversationStore interface {
	repository.IdentityStore
	repository.ContactStore
	repository.ConversationStore
	repository.MessageStore
	repository.CursorStore
}

// ConversationService cuida da identidade canônica das conversas, da
// paginação por cursor e do estado de leitura
type ConversationService struct {
	store conversationStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewConversationService cria um novo serviço de conversas
func NewConversationService(store conversationStore, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

// CanonicalKey ordena o par pela forma textual dos UUIDs: "min:max"
func CanonicalKey(u1, u2 uuid.UUID) (key string, a, b uuid.UUID) {
	a, b = u1, u2
	if b.String() < a.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String(), a, b
}

// ConversationFor devolve (criando se preciso) a única conversa do par
func (s *ConversationService) ConversationFor(ctx context.Context, u1, u2 uuid.UUID) (*models.Conversation, error) {
	if u1 == u2 {
		return nil, apperrors.Validation("conversa exige dois participantes distintos")
	}
	key, a, b := CanonicalKey(u1, u2)
	conv, err := s.store.GetOrCreateConversation(ctx, key, a, b)
	if err != nil {
		return nil, apperrors.Internal("falha ao abrir conversa", err)
	}
	return conv, nil
}

// OpenResult é o retorno de Open
type OpenResult struct {
	Conversation *models.Conversation
	Peer         *models.User
	History      []*models.Message
}

// Open abre a conversa com um contato, garante o cursor de leitura e devolve
// as últimas mensagens
func (s *ConversationService) Open(ctx context.Context, user *models.User, peerHandle string) (*OpenResult, error) {
	if err := ValidateHandle(peerHandle); err != nil {
		return nil, err
	}
	peer, err := s.store.GetUserByHandle(ctx, peerHandle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("usuário não encontrado")
		}
		return nil, apperrors.Internal("falha ao buscar usuário", err)
	}
	ok, err := s.store.IsContact(ctx, user.ID, peer.ID)
	if err != nil {
		return nil, apperrors.Internal("falha ao consultar agenda", err)
	}
	if !ok {
		return nil, apperrors.ErrNotAContact
	}

	conv, err := s.ConversationFor(ctx, user.ID, peer.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.EnsureReadCursor(ctx, conv.ID, user.ID); err != nil {
		return nil, apperrors.Internal("falha ao criar cursor de leitura", err)
	}
	history, err := s.store.LastMessages(ctx, conv.ID, OpenHistorySize)
	if err != nil {
		return nil, apperrors.Internal("falha ao carregar histórico", err)
	}
	return &OpenResult{Conversation: conv, Peer: peer, History: history}, nil
}

// Participant carrega a conversa e exige que o usuário faça parte dela
func (s *ConversationService) Participant(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("conversa não encontrada")
		}
		return nil, apperrors.Internal("falha ao buscar conversa", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.Forbidden("conversa não é sua")
	}
	return conv, nil
}

// ClampLimit aplica o padrão (0 -> 200) e os limites [1, 1000]
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultFetchLimit
	case limit < 1:
		return 1
	case limit > MaxFetchLimit:
		return MaxFetchLimit
	}
	return limit
}

// FetchSince devolve as mensagens estritamente após o cursor (afterT, afterID)
// em ordem (t, id) crescente
func (s *ConversationService) FetchSince(ctx context.Context, userID, conversationID uuid.UUID, afterT, afterID int64, limit int) ([]*models.Message, error) {
	if _, err := s.Participant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.MessagesSince(ctx, conversationID, afterT, afterID, ClampLimit(limit))
	if err != nil {
		return nil, apperrors.Internal("falha ao buscar mensagens", err)
	}
	return msgs, nil
}

// LastRead devolve o cursor do usuário. last_read_t é derivado da mensagem
// referenciada e vale 0 se ela não existir mais.
func (s *ConversationService) LastRead(ctx context.Context, conversationID, userID uuid.UUID) (id, t int64, err error) {
	cursor, err := s.store.GetReadCursor(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, 0, nil
		}
		return 0, 0, apperrors.Internal("falha ao buscar cursor", err)
	}
	if cursor.LastReadMessageID == 0 {
		return 0, 0, nil
	}

	msg, err := s.store.GetMessage(ctx, cursor.LastReadMessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return cursor.LastReadMessageID, 0, nil
		}
		return 0, 0, apperrors.Internal("falha ao buscar mensagem do cursor", err)
	}
	return cursor.LastReadMessageID, msg.TMs, nil
}

// MarkRead move o cursor para a mensagem mais recente endereçada ao usuário.
// Sem mensagens recebidas não faz nada e devolve o cursor atual.
func (s *ConversationService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	if _, err := s.Participant(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	latest, err := s.store.LatestMessage(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			id, _, err := s.LastRead(ctx, conversationID, userID)
			return id, err
		}
		return 0, apperrors.Internal("falha ao buscar última mensagem", err)
	}

	err = s.store.UpsertReadCursor(ctx, &models.ReadCursor{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: latest.ID,
		UpdatedAt:         s.now().UTC(),
	})
	if err != nil {
		return 0, apperrors.Internal("falha ao gravar cursor", err)
	}
	return latest.ID, nil
}

// UnreadCount conta as mensagens para o usuário depois do cursor de leitura
func (s *ConversationService) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	id, t, err := s.LastRead(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.CountInboundAfter(ctx, conversationID, userID, t, id)
	if err != nil {
		return 0, apperrors.Internal("falha ao contar não lidas", err)
	}
	return n, nil
}

// Summary lista as conversas do usuário com mensagens, da mais recente para a
// mais antiga, com o total de não lidas
func (s *ConversationService) Summary(ctx context.Context, user *models.User) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversationsFor(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Internal("falha ao listar conversas", err)
	}

	type row struct {
		summary models.ConversationSummary
		lastID  int64
	}
	rows := make([]row, 0, len(convs))
	for _, c := range convs {
		last, err := s.store.LatestMessage(ctx, c.ID, uuid.Nil)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, apperrors.Internal("falha ao buscar última mensagem", err)
		}
		peer, err := s.store.GetUserByID(ctx, c.PeerFor(user.ID))
		if err != nil {
			s.log.Warn().Str("conversation_id", c.ID.String()).Msg("conversa com participante inexistente")
			continue
		}
		unread, err := s.UnreadCount(ctx, c.ID, user.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row{
			summary: models.ConversationSummary{
				ConversationID: c.ID,
				PeerHandle:     peer.Handle,
				Unread:         unread,
				LastTMs:        last.TMs,
			},
			lastID: last.ID,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].summary.LastTMs != rows[j].summary.LastTMs {
			return rows[i].summary.LastTMs > rows[j].summary.LastTMs
		}
		return rows[i].lastID > rows[j].lastID
	})

	out := make([]models.ConversationSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary
	}
	return out, nil
}
