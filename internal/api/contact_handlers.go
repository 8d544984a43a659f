package api

import (
	"net/http"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/service"
	"pqchat-backend/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// === Handlers de Contatos ===

// handleCreateContactRequest (POST /contacts/requests)
func (h *Handler) handleCreateContactRequest(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req wire.ContactRequestCreate
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var d b64
	in := service.CreateContactRequest{
		RecipientHandle:      req.Handle,
		Note:                 req.Note,
		TMs:                  req.T,
		Nonce:                d.field("n_b64", req.Nonce),
		Signature:            d.field("s_b64", req.Signature),
		PeerSigningPublicKey: d.field("peer_ps_b64", req.PeerSigningPublicKey),
	}
	if d.err != nil {
		h.respondWithError(w, r, d.err)
		return
	}

	cr, err := h.contacts.Create(r.Context(), user, in)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, wire.ContactRequestCreated{
		ID:              cr.ID,
		Status:          string(cr.Status),
		RecipientHandle: cr.RecipientHandle,
	})
}

// handleListContactRequests (GET /contacts/requests)
func (h *Handler) handleListContactRequests(w http.ResponseWriter, r *http.Request, user *models.User) {
	pending, err := h.contacts.ListPending(r.Context(), user)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	response := make([]wire.PendingRequest, 0, len(pending))
	for _, p := range pending {
		response = append(response, wire.PendingRequest{
			ID:                   p.Request.ID,
			From:                 p.Requester.Handle,
			FromSigningPublicKey: pqcrypto.ToBase64URL(p.Request.RequesterPubKey),
			Note:                 p.Request.Note,
			At:                   p.Request.CreatedAt,
		})
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

// handleRespondContactRequest (POST /contacts/requests/{id}/respond)
func (h *Handler) handleRespondContactRequest(w http.ResponseWriter, r *http.Request, user *models.User) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, r, apperrors.Validation("id do pedido inválido"))
		return
	}

	var req wire.ContactRespond
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var proof *service.AcceptProof
	if req.Nonce != "" || req.Signature != "" || req.T != 0 {
		var d b64
		proof = &service.AcceptProof{
			TMs:       req.T,
			Nonce:     d.field("n_b64", req.Nonce),
			Signature: d.field("s_b64", req.Signature),
		}
		if d.err != nil {
			h.respondWithError(w, r, d.err)
			return
		}
	}

	status, err := h.contacts.Respond(r.Context(), user, id, service.ContactDecision(req.Decision), proof)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.ContactRespondResponse{OK: true, Status: string(status)})
}

// handleListContacts (GET /contacts)
func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request, user *models.User) {
	contacts, err := h.contacts.ListContacts(r.Context(), user)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	response := make([]wire.UserKey, 0, len(contacts))
	for _, c := range contacts {
		response = append(response, wire.NewUserKey(c))
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

// handleShowContact (GET /contacts/{handle})
func (h *Handler) handleShowContact(w http.ResponseWriter, r *http.Request, user *models.User) {
	peer, isContact, err := h.contacts.Show(r.Context(), user, chi.URLParam(r, "handle"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	key := wire.NewUserKey(peer)
	h.respondWithJSON(w, http.StatusOK, wire.ContactShowResponse{
		Handle:           key.Handle,
		UserID:           key.UserID,
		Contact:          isContact,
		SigningPublicKey: key.SigningPublicKey,
		KEMPublicKey:     key.KEMPublicKey,
	})
}
