package cli

import (
	"fmt"
	"text/tabwriter"

	"pqchat-backend/internal/wire"

	"github.com/spf13/cobra"
)

func newContactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Pedidos de contato e agenda",
	}

	request := &cobra.Command{
		Use:   "request <handle>",
		Short: "Envia um pedido de contato assinado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			note, _ := cmd.Flags().GetString("note")
			created, err := s.identity.RequestContact(cmd.Context(), s.client, args[0], note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+] Pedido %s para @%s (%s)\n", created.ID, created.RecipientHandle, created.Status)
			return nil
		},
	}
	request.Flags().String("note", "", "Mensagem opcional junto ao pedido")

	pending := &cobra.Command{
		Use:   "pending",
		Short: "Lista pedidos pendentes para você",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			reqs, err := s.client.PendingRequests(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDE\tQUANDO\tNOTA")
			for _, r := range reqs {
				fmt.Fprintf(w, "%s\t@%s\t%s\t%s\n", r.ID, r.From, r.At.Local().Format("2006-01-02 15:04"), r.Note)
			}
			return w.Flush()
		},
	}

	respond := func(use, short string, accept bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := openSession(cmd)
				if err != nil {
					return err
				}
				req, err := findPending(cmd, s, args[0])
				if err != nil {
					return err
				}
				if accept {
					err = s.identity.Accept(cmd.Context(), s.client, *req)
				} else {
					err = s.identity.Decline(cmd.Context(), s.client, *req)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[+] Pedido de @%s respondido\n", req.From)
				return nil
			},
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista seus contatos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			contacts, err := s.client.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range contacts {
				fmt.Fprintf(cmd.OutOrStdout(), "@%s\n", c.Handle)
			}
			return nil
		},
	}

	cmd.AddCommand(
		request,
		pending,
		respond("accept", "Aceita um pedido com uma nova prova assinada", true),
		respond("decline", "Recusa um pedido", false),
		list,
	)
	return cmd
}

// findPending acha o pedido pendente pelo id; a chave do solicitante vem junto
func findPending(cmd *cobra.Command, s *session, id string) (*wire.PendingRequest, error) {
	reqs, err := s.client.PendingRequests(cmd.Context())
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if reqs[i].ID.String() == id {
			return &reqs[i], nil
		}
	}
	return nil, fmt.Errorf("nenhum pedido pendente com id %s", id)
}
