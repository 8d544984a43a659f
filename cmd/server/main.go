package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pqchat-backend/internal/app"
	"pqchat-backend/internal/config"
	"pqchat-backend/internal/logging"
	"pqchat-backend/internal/repository"
	"pqchat-backend/migrations"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// .env é opcional: em produção as variáveis vêm do ambiente (Docker/K8s)
	envErr := godotenv.Load()

	// 1. Carregar Configuração
	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Falha ao carregar configuração: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("arquivo .env não carregado, usando variáveis de ambiente existentes")
	}

	// 2. Inicializar Camada de Repositório
	store, closeStore, err := openStore(&cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver()).Msg("falha ao iniciar o armazenamento")
	}
	defer closeStore()

	// 3. Montar serviços e API
	server, err := app.New(store, &cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("falha ao montar o servidor")
	}
	defer server.Close()

	// 4. Configurar Servidor HTTP
	// sem WriteTimeout: o canal ao vivo é uma conexão longa
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     server.Handler,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.ServerPort).Msgf("servidor iniciado em http://localhost:%d/v1", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("erro ao iniciar servidor")
		}
	}()

	// Aguardar sinal de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("recebido sinal de desligamento, encerrando servidor...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("erro no graceful shutdown")
	}
	log.Info().Msg("servidor encerrado")
}

func openStore(cfg *config.Config, log zerolog.Logger) (repository.Store, func(), error) {
	if cfg.Driver() == "memory" {
		log.Warn().Msg("usando armazenamento em memória; os dados somem ao reiniciar")
		return repository.NewInMemoryStore(), func() {}, nil
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := repository.NewPostgresStore(initCtx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("conectado ao PostgreSQL")

	if err := store.RunMigrations(initCtx, migrations.InitSQL); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("falha ao rodar migrações: %w", err)
	}
	log.Info().Msg("migrações do banco de dados aplicadas")
	return store, store.Close, nil
}
