package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Gera as chaves e cria o perfil local",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := homeDir(cmd)
			server, _ := cmd.Flags().GetString("server")
			handle, _ := cmd.Flags().GetString("handle")
			force, _ := cmd.Flags().GetBool("force")
			if handle == "" {
				return fmt.Errorf("--handle é obrigatório")
			}

			if _, err := os.Stat(profilePath(home)); err == nil && !force {
				return fmt.Errorf("perfil já existe em %s (use --force para sobrescrever)", home)
			}

			p, err := NewProfile(server, handle)
			if err != nil {
				return err
			}
			if err := p.Save(home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+] Perfil de @%s criado em %s\n", handle, home)
			return nil
		},
	}
	cmd.Flags().String("server", "http://localhost:8080", "URL do servidor")
	cmd.Flags().String("handle", "", "Handle desejado")
	cmd.Flags().Bool("force", false, "Sobrescreve um perfil existente")
	return cmd
}

func newRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Registra o handle do perfil no servidor e faz login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}

			userID, err := s.identity.Register(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+] @%s registrado (%s)\n", s.profile.Handle, userID)
			return s.login(cmd)
		},
	}
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Prova a posse da chave de assinatura e guarda o token de sessão",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			return s.login(cmd)
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostra a sessão atual",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			session, err := s.client.Session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "@%s (%s)\n", session.Handle, session.UserID)
			return nil
		},
	}
}
