package repository

import (
	"context"
	"testing"
	"time"

	"pqchat-backend/migrations"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipOnPanic roda check e pula o teste se ele entrar em pânico; sem Docker
// o testcontainers entra em pânico ao procurar o host
func skipOnPanic(t *testing.T, check func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("provedor de containers indisponível: %v", r)
		}
	}()
	check()
}

func TestSkipOnPanic(t *testing.T) {
	var inner *testing.T
	t.Run("pânico", func(t *testing.T) {
		inner = t
		skipOnPanic(t, func() { panic("rootless Docker not found") })
		t.Error("não deveria continuar depois do skip")
	})
	require.NotNil(t, inner)
	require.True(t, inner.Skipped())

	ran := false
	t.Run("saudável", func(t *testing.T) {
		skipOnPanic(t, func() {})
		ran = true
	})
	require.True(t, ran)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("teste de integração com PostgreSQL ignorado em -short")
	}
	skipOnPanic(t, func() { testcontainers.SkipIfProviderIsNotHealthy(t) })

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pqchat"),
		postgres.WithUsername("pqchat"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("falha ao encerrar container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, connStr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.InitSQL))

	runStoreContract(t, func(t *testing.T) Store {
		_, err := store.db.Exec(ctx, `TRUNCATE users, used_nonces, contact_requests, contacts,
            conversations, messages, chat_reads RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return store
	})
}
