// Package app monta o grafo de dependências do servidor a partir da
// configuração: gate de envelopes, hub, serviços e roteador.
package app

import (
	"net/http"

	"pqchat-backend/internal/api"
	"pqchat-backend/internal/auth"
	"pqchat-backend/internal/config"
	"pqchat-backend/internal/envelope"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/pubsub"
	"pqchat-backend/internal/repository"
	"pqchat-backend/internal/service"

	"github.com/rs/zerolog"
)

const hubBuffer = 32

// App é o servidor montado
type App struct {
	Handler http.Handler

	closers []func()
}

// New monta os serviços sobre o store dado e inicia os janitors de desafios
func New(store repository.Store, cfg *config.Config, log zerolog.Logger) (*App, error) {
	suite := pqcrypto.NewSuite()
	gate := envelope.NewGate(suite, store, envelope.WithWindow(cfg.FreshnessWindow))
	hub := pubsub.NewHub(hubBuffer, log)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	registration := service.NewRegistrationService(store, suite, cfg.ChallengeTTL, log)
	login := service.NewLoginService(store, suite, tokens, cfg.ChallengeTTL, cfg.LoginFailureDelay, log)
	registration.StartJanitor(cfg.ChallengeTTL)
	login.StartJanitor(cfg.ChallengeTTL)

	conversations := service.NewConversationService(store, log)
	handler := api.NewHandler(api.Services{
		Registration:  registration,
		Login:         login,
		Users:         service.NewUserService(store),
		Contacts:      service.NewContactService(store, gate, log),
		Conversations: conversations,
		Messages:      service.NewMessageService(store, conversations, gate, hub, log),
	}, tokens, hub, cfg.CORSOrigins, log)

	return &App{
		Handler: handler.Routes(),
		closers: []func(){registration.Close, login.Close},
	}, nil
}

// Close para os janitors
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}
