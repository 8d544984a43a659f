package api

import (
	"net/http"
	"strconv"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/service"
	"pqchat-backend/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	liveWriteWait = 10 * time.Second
	livePingEvery = 30 * time.Second
)

// === Handlers de Mensagens ===

// handleCreateMessage (POST /messages)
func (h *Handler) handleCreateMessage(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req wire.MessageCreate
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	var d b64
	in := service.SendMessageRequest{
		ToHandle:       req.ToHandle,
		TMs:            req.T,
		Nonce:          d.field("n_b64", req.Nonce),
		KEMCiphertext:  d.field("ck_b64", req.KEMCiphertext),
		AEADCiphertext: d.field("cm_b64", req.AEADCiphertext),
		Signature:      d.field("s_b64", req.Signature),
	}
	if d.err != nil {
		h.respondWithError(w, r, d.err)
		return
	}

	msg, err := h.messages.Send(r.Context(), user, in)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, wire.MessageCreated{ID: msg.ID, OK: true, ConversationID: msg.ConversationID})
}

// handleListMessages (GET /messages?box=inbox|outbox)
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request, user *models.User) {
	msgs, err := h.messages.Mailbox(r.Context(), user, r.URL.Query().Get("box"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.messages.Present(r.Context(), msgs))
}

// === Handlers de Conversas ===

func conversationParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("id da conversa inválido")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.Validation("parâmetro '" + name + "' inválido")
	}
	return v, nil
}

// handleOpenChat (POST /chats/open)
func (h *Handler) handleOpenChat(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req wire.ChatOpenRequest
	if err := h.decode(r, &req); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	open, err := h.conversations.Open(r.Context(), user, req.Handle)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wire.ChatOpenResponse{
		ConversationID: open.Conversation.ID,
		Peer:           wire.NewUserKey(open.Peer),
		History:        h.messages.Present(r.Context(), open.History),
	})
}

// handleChatSummary (GET /chats/summary)
func (h *Handler) handleChatSummary(w http.ResponseWriter, r *http.Request, user *models.User) {
	summary, err := h.conversations.Summary(r.Context(), user)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, summary)
}

// handleMarkRead (POST /chats/{id}/read)
func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request, user *models.User) {
	convID, err := conversationParam(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	id, err := h.conversations.MarkRead(r.Context(), user.ID, convID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, wire.ReadResponse{LastReadMessageID: id})
}

// handleChatMessages (GET /chats/{id}/messages?after_t&after_id&limit)
func (h *Handler) handleChatMessages(w http.ResponseWriter, r *http.Request, user *models.User) {
	convID, err := conversationParam(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	afterT, err := queryInt(r, "after_t")
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	afterID, err := queryInt(r, "after_id")
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}

	msgs, err := h.conversations.FetchSince(r.Context(), user.ID, convID, afterT, afterID, int(limit))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.messages.Present(r.Context(), msgs))
}

// handleLastRead (GET /chats/{id}/last_read)
func (h *Handler) handleLastRead(w http.ResponseWriter, r *http.Request, user *models.User) {
	convID, err := conversationParam(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	if _, err := h.conversations.Participant(r.Context(), convID, user.ID); err != nil {
		h.respondWithError(w, r, err)
		return
	}

	id, t, err := h.conversations.LastRead(r.Context(), convID, user.ID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, wire.LastReadResponse{LastReadMessageID: id, LastReadT: t})
}

// handleChatLive (GET /chats/{id}/live) repassa os avisos do tópico da
// conversa por websocket. O canal é só uma dica; o cliente sincroniza pelo cursor.
func (h *Handler) handleChatLive(w http.ResponseWriter, r *http.Request, user *models.User) {
	convID, err := conversationParam(r)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	conv, err := h.conversations.Participant(r.Context(), convID, user.ID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	if h.broker == nil {
		h.respondWithError(w, r, apperrors.NotFound("canal ao vivo desativado"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("falha no upgrade do websocket")
		return
	}
	defer conn.Close()

	events, cancel := h.broker.Subscribe(pubsub.ChatTopic(conv.ID))
	defer cancel()

	// o cliente não envia nada; a leitura só detecta o fechamento
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.log.Debug().Str("conversation_id", conv.ID.String()).Str("handle", user.Handle).Msg("websocket conectado")
	ping := time.NewTicker(livePingEvery)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}
