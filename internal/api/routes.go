package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes configura e retorna o roteador Chi
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middlewares globais
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Tempo de cache da preflight
	}))

	// Rotas da API V1
	r.Route("/v1", func(r chi.Router) {
		// Endpoints públicos (sem autenticação)
		r.Post("/register/init", h.handleRegisterInit)
		r.Post("/register/verify", h.handleRegisterVerify)
		r.Post("/login/challenge", h.handleLoginChallenge)
		r.Post("/login/submit", h.handleLoginSubmit)

		// Endpoints protegidos (requerem autenticação)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/session", h.withUser(h.handleSession))
			r.Get("/users/{handle}/key", h.handleGetUserKey)

			r.Post("/contacts/requests", h.withUser(h.handleCreateContactRequest))
			r.Get("/contacts/requests", h.withUser(h.handleListContactRequests))
			r.Post("/contacts/requests/{id}/respond", h.withUser(h.handleRespondContactRequest))
			r.Get("/contacts", h.withUser(h.handleListContacts))
			r.Get("/contacts/{handle}", h.withUser(h.handleShowContact))

			r.Post("/messages", h.withUser(h.handleCreateMessage))
			r.Get("/messages", h.withUser(h.handleListMessages))

			r.Post("/chats/open", h.withUser(h.handleOpenChat))
			r.Get("/chats/summary", h.withUser(h.handleChatSummary))
			r.Post("/chats/{id}/read", h.withUser(h.handleMarkRead))
			r.Get("/chats/{id}/messages", h.withUser(h.handleChatMessages))
			r.Get("/chats/{id}/last_read", h.withUser(h.handleLastRead))
			r.Get("/chats/{id}/live", h.withUser(h.handleChatLive))
		})
	})

	return r
}
