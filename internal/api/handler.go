package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/auth"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/service"
	"pqchat-backend/internal/wire"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Services agrupa os serviços consumidos pelos handlers
type Services struct {
	Registration  *service.RegistrationService
	Login         *service.LoginService
	Users         *service.UserService
	Contacts      *service.ContactService
	Conversations *service.ConversationService
	Messages      *service.MessageService
}

// Handler gerencia as dependências para os handlers HTTP
type Handler struct {
	registration  *service.RegistrationService
	login         *service.LoginService
	users         *service.UserService
	contacts      *service.ContactService
	conversations *service.ConversationService
	messages      *service.MessageService
	tokenService  *auth.TokenService
	broker        pubsub.Broker
	validate      *validator.Validate
	corsOrigins   []string
	upgrader      websocket.Upgrader
	log           zerolog.Logger
}

// NewHandler cria uma nova instância do Handler
func NewHandler(svc Services, tokenSvc *auth.TokenService, broker pubsub.Broker, corsOrigins []string, log zerolog.Logger) *Handler {
	h := &Handler{
		registration:  svc.Registration,
		login:         svc.Login,
		users:         svc.Users,
		contacts:      svc.Contacts,
		conversations: svc.Conversations,
		messages:      svc.Messages,
		tokenService:  tokenSvc,
		broker:        broker,
		validate:      validator.New(),
		corsOrigins:   corsOrigins,
		log:           log,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin aceita clientes sem Origin (não-navegador) e as origens do CORS
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.corsOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// === Funções Auxiliares de Resposta ===

func (h *Handler) respondWithStatus(w http.ResponseWriter, code int, kind apperrors.Kind, message string) {
	h.respondWithJSON(w, code, wire.ErrorBody{Error: wire.ErrorDetail{
		Code:    code,
		Kind:    string(kind),
		Message: message,
	}})
}

// respondWithError traduz o erro etiquetado para status + corpo padrão.
// A causa de erros internos vai só para o log.
func (h *Handler) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	code := apperrors.HTTPStatus(kind)
	if kind == apperrors.KindInternal {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("erro interno")
	}
	h.respondWithStatus(w, code, kind, apperrors.MessageOf(err))
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("erro ao serializar JSON")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"kind":"internal","message":"Erro interno ao serializar resposta"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// decode lê o corpo JSON e aplica as tags validate
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validation("Payload JSON inválido")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.Validation("Dados inválidos: " + err.Error())
	}
	return nil
}

// b64 acumula o primeiro erro de decodificação entre vários campos
type b64 struct {
	err error
}

func (d *b64) field(name, value string) []byte {
	if d.err != nil {
		return nil
	}
	out, err := pqcrypto.FromBase64URL(value)
	if err != nil {
		d.err = apperrors.Validation(fmt.Sprintf("%s: base64 inválido", name))
		return nil
	}
	return out
}

func currentUser(r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(userContextKey).(*models.User)
	return user, ok && user != nil
}

// withUser extrai o usuário autenticado injetado pelo AuthMiddleware
func (h *Handler) withUser(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(r)
		if !ok {
			h.respondWithStatus(w, http.StatusUnauthorized, apperrors.KindUnauthorized, "Contexto de usuário inválido")
			return
		}
		next(w, r, user)
	}
}
