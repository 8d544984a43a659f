package api

import (
	"net/http"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/wire"

	"github.com/go-chi/chi/v5"
)

// === Handlers de Registro e Login ===

// handleRegisterInit (POST /register/init)
func (h *Handler) handleRegisterInit(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterInitRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var d b64
	ps := d.field("ps_b64", req.SigningPublicKey)
	pk := d.field("pk_b64", req.KEMPublicKey)
	if d.err != nil {
		h.respondWithError(w, r, d.err)
		return
	}

	ch, err := h.registration.Init(r.Context(), req.Handle, ps, pk)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.RegisterInitResponse{
		M:          pqcrypto.ToBase64URL(ch.M),
		Ciphertext: pqcrypto.ToBase64URL(ch.Ciphertext),
		Nonce:      pqcrypto.ToBase64URL(ch.Nonce),
	})
}

// handleRegisterVerify (POST /register/verify)
func (h *Handler) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterVerifyRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var d b64
	nonce := d.field("nonce_b64", req.Nonce)
	sig := d.field("sig_b64", req.Signature)
	kPrime := d.field("k_prime_b64", req.KPrime)
	if d.err != nil {
		h.respondWithError(w, r, d.err)
		return
	}

	user, err := h.registration.Verify(r.Context(), req.Handle, nonce, sig, kPrime)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, wire.RegisterVerifyResponse{
		Verified: true,
		UserID:   user.ID,
		Handle:   user.Handle,
	})
}

// handleLoginChallenge (POST /login/challenge)
func (h *Handler) handleLoginChallenge(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginChallengeRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	ch, err := h.login.Challenge(r.Context(), req.Handle)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.LoginChallengeResponse{
		Challenge: pqcrypto.ToBase64URL(ch.Challenge),
		Nonce:     pqcrypto.ToBase64URL(ch.Nonce),
	})
}

// handleLoginSubmit (POST /login/submit)
func (h *Handler) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginSubmitRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var d b64
	nonce := d.field("nonce_b64", req.Nonce)
	sig := d.field("sig_b64", req.Signature)
	if d.err != nil {
		h.respondWithError(w, r, d.err)
		return
	}

	session, err := h.login.Submit(r.Context(), nonce, sig)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.LoginSubmitResponse{
		OK:     true,
		UserID: session.User.ID,
		Handle: session.User.Handle,
		Token:  session.Token,
	})
}

// handleSession (GET /session)
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	h.respondWithJSON(w, http.StatusOK, wire.SessionResponse{UserID: user.ID, Handle: user.Handle})
}

// handleGetUserKey (GET /users/{handle}/key)
func (h *Handler) handleGetUserKey(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		h.respondWithError(w, r, apperrors.Validation("Handle não fornecido"))
		return
	}

	user, err := h.users.GetUserPublicKey(r.Context(), handle)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.NewUserKey(user))
}
