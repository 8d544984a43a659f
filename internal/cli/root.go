// Package cli implementa os comandos do cliente de terminal pqchat.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pqchat-backend/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCommand monta o comando raiz com todos os subcomandos
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pqchat",
		Short:         "Cliente de terminal do pqchat",
		Long:          "Mensagens ponta a ponta com ML-KEM-512 e ML-DSA-44. As chaves secretas ficam só no perfil local.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("home", defaultHome(), "Diretório do perfil e do log local")
	root.PersistentFlags().String("log-level", "warn", "Nível de log (debug, info, warn, error)")

	root.AddCommand(
		newInitCommand(),
		newRegisterCommand(),
		newLoginCommand(),
		newWhoamiCommand(),
		newContactCommand(),
		newSendCommand(),
		newSummaryCommand(),
		newChatCommand(),
	)
	return root
}

// Execute roda o comando raiz e encerra o processo em caso de erro
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "[!]", err)
		os.Exit(1)
	}
}

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".pqchat"
	}
	return filepath.Join(dir, ".pqchat")
}

func homeDir(cmd *cobra.Command) string {
	home, _ := cmd.Flags().GetString("home")
	return home
}

func logger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.NewWithWriter(cmd.ErrOrStderr(), level, true)
}
