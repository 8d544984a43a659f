package service

import (
	"bytes"
	"context"
	"errors"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContactDecision é a resposta do destinatário a um pedido
type ContactDecision string

const (
	DecisionAccept  ContactDecision = "accept"
	DecisionDecline ContactDecision = "decline"
)

type contactStore interface {
	repository.IdentityStore
	repository.ContactStore
}

// ContactService implementa o handshake de contatos assinado pelas duas partes
type ContactService struct {
	store contactStore
	gate  *envelope.Gate
	now   func() time.Time
	log   zerolog.Logger
}

// NewContactService cria um novo serviço de contatos
func NewContactService(store contactStore, gate *envelope.Gate, log zerolog.Logger) *ContactService {
	return &ContactService{
		store: store,
		gate:  gate,
		now:   time.Now,
		log:   log,
	}
}

// CreateContactRequest define os parâmetros de um pedido de contato.
// A assinatura cobre pack(t, nonce, peer_signing_pubkey).
type CreateContactRequest struct {
	RecipientHandle      string
	Note                 string
	TMs                  int64
	Nonce                []byte
	Signature            []byte
	PeerSigningPublicKey []byte
}

// AcceptProof é a segunda prova exigida no aceite, assinada pelo destinatário
// sobre pack(t', nonce', chave do solicitante).
type AcceptProof struct {
	TMs       int64
	Nonce     []byte
	Signature []byte
}

// PendingRequest é um pedido pendente acompanhado do solicitante
type PendingRequest struct {
	Request   *models.ContactRequest
	Requester *models.User
}

// Create registra um pedido pendente depois de validar o envelope do solicitante
func (s *ContactService) Create(ctx context.Context, requester *models.User, req CreateContactRequest) (*models.ContactRequest, error) {
	if err := ValidateHandle(req.RecipientHandle); err != nil {
		return nil, err
	}
	if req.RecipientHandle == requester.Handle {
		return nil, apperrors.Validation("não é possível pedir contato a si mesmo")
	}
	if len(req.PeerSigningPublicKey) == 0 {
		return nil, apperrors.Validation("chave do destinatário é obrigatória")
	}

	var recipientID *uuid.UUID
	recipient, err := s.store.GetUserByHandle(ctx, req.RecipientHandle)
	switch {
	case err == nil:
		id := recipient.ID
		recipientID = &id
	case errors.Is(err, repository.ErrNotFound):
		// destinatário ainda não registrado; o pedido fica endereçado ao handle
		recipient = nil
	default:
		return nil, apperrors.Internal("falha ao buscar destinatário", err)
	}

	if err := s.gate.Check(ctx, requester.SigningPublicKey, req.TMs, req.Nonce, req.Signature, req.PeerSigningPublicKey); err != nil {
		s.log.Info().Str("handle", requester.Handle).Str("kind", string(apperrors.KindOf(err))).Msg("pedido de contato recusado")
		return nil, err
	}
	if recipient != nil && !bytes.Equal(recipient.SigningPublicKey, req.PeerSigningPublicKey) {
		return nil, apperrors.Validation("chave do destinatário não confere com a registrada")
	}

	cr := &models.ContactRequest{
		ID:              uuid.New(),
		RequesterID:     requester.ID,
		RecipientHandle: req.RecipientHandle,
		RecipientID:     recipientID,
		Note:            req.Note,
		Status:          models.ContactRequestPending,
		TMs:             req.TMs,
		Nonce:           req.Nonce,
		Signature:       req.Signature,
		RequesterPubKey: requester.SigningPublicKey,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateContactRequest(ctx, cr); err != nil {
		return nil, apperrors.Internal("falha ao salvar pedido de contato", err)
	}

	s.log.Info().Str("from", requester.Handle).Str("to", req.RecipientHandle).Msg("pedido de contato criado")
	return cr, nil
}

// ListPending lista os pedidos pendentes endereçados ao usuário (por id ou handle)
func (s *ContactService) ListPending(ctx context.Context, user *models.User) ([]PendingRequest, error) {
	reqs, err := s.store.ListPendingRequestsFor(ctx, user.ID, user.Handle)
	if err != nil {
		return nil, apperrors.Internal("falha ao listar pedidos", err)
	}

	out := make([]PendingRequest, 0, len(reqs))
	for _, r := range reqs {
		requester, err := s.store.GetUserByID(ctx, r.RequesterID)
		if err != nil {
			s.log.Warn().Str("request_id", r.ID.String()).Msg("pedido com solicitante inexistente")
			continue
		}
		out = append(out, PendingRequest{Request: r, Requester: requester})
	}
	return out, nil
}

func designated(req *models.ContactRequest, user *models.User) bool {
	if req.RecipientID != nil && *req.RecipientID == user.ID {
		return true
	}
	return req.RecipientHandle == user.Handle
}

// Respond aplica a decisão do destinatário. Recusar não exige prova; aceitar
// exige uma prova fresca assinada pela chave do destinatário.
func (s *ContactService) Respond(ctx context.Context, user *models.User, requestID uuid.UUID, decision ContactDecision, proof *AcceptProof) (models.ContactRequestStatus, error) {
	var status models.ContactRequestStatus
	switch decision {
	case DecisionAccept:
		status = models.ContactRequestAccepted
	case DecisionDecline:
		status = models.ContactRequestDeclined
	default:
		return "", apperrors.Validation("decisão deve ser accept ou decline")
	}

	req, err := s.store.GetContactRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.NotFound("pedido não encontrado")
		}
		return "", apperrors.Internal("falha ao buscar pedido", err)
	}
	if !designated(req, user) {
		return "", apperrors.Forbidden("pedido não é seu")
	}
	if req.Status != models.ContactRequestPending {
		return "", apperrors.Forbidden("pedido já foi respondido")
	}

	if status == models.ContactRequestAccepted {
		if proof == nil {
			return "", apperrors.Validation("aceite exige t, n_b64 e s_b64")
		}
		if err := s.gate.Check(ctx, user.SigningPublicKey, proof.TMs, proof.Nonce, proof.Signature, req.RequesterPubKey); err != nil {
			s.log.Info().Str("handle", user.Handle).Str("kind", string(apperrors.KindOf(err))).Msg("aceite recusado")
			return "", err
		}
	}

	if err := s.store.ResolveContactRequest(ctx, req.ID, user.ID, status); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotPending):
			return "", apperrors.Forbidden("pedido já foi respondido")
		case errors.Is(err, repository.ErrNotFound):
			return "", apperrors.NotFound("pedido não encontrado")
		}
		return "", apperrors.Internal("falha ao responder pedido", err)
	}

	s.log.Info().Str("request_id", req.ID.String()).Str("status", string(status)).Msg("pedido de contato respondido")
	return status, nil
}

// ListContacts devolve a agenda do usuário com as chaves públicas
func (s *ContactService) ListContacts(ctx context.Context, user *models.User) ([]*models.User, error) {
	users, err := s.store.ListContacts(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Internal("falha ao listar contatos", err)
	}
	return users, nil
}

// Show devolve as chaves de um handle e se ele já está na agenda do usuário
func (s *ContactService) Show(ctx context.Context, user *models.User, handle string) (*models.User, bool, error) {
	peer, err := s.store.GetUserByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NotFound("usuário não encontrado")
		}
		return nil, false, apperrors.Internal("falha ao buscar usuário", err)
	}
	ok, err := s.store.IsContact(ctx, user.ID, peer.ID)
	if err != nil {
		return nil, false, apperrors.Internal("falha ao consultar agenda", err)
	}
	return peer, ok, nil
}
