package cli

import (
	"fmt"

	"pqchat-backend/internal/client"

	"github.com/spf13/cobra"
)

// session junta o perfil carregado, a identidade e o cliente HTTP
type session struct {
	home     string
	profile  *Profile
	identity *client.Identity
	client   *client.Client
}

func openSession(cmd *cobra.Command) (*session, error) {
	home := homeDir(cmd)
	p, err := LoadProfile(home)
	if err != nil {
		return nil, err
	}
	id, err := p.Identity()
	if err != nil {
		return nil, err
	}
	c, err := p.Client()
	if err != nil {
		return nil, err
	}
	return &session{home: home, profile: p, identity: id, client: c}, nil
}

func (s *session) login(cmd *cobra.Command) error {
	if err := s.identity.Login(cmd.Context(), s.client); err != nil {
		return err
	}
	s.profile.Token = s.client.Token()
	if err := s.profile.Save(s.home); err != nil {
		return fmt.Errorf("login ok, mas falhou ao salvar o token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[+] Sessão iniciada como @%s\n", s.profile.Handle)
	return nil
}
