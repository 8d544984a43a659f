package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"pqchat-backend/internal/chatsync"
	"pqchat-backend/internal/locallog"
	"pqchat-backend/internal/timeline"

	"github.com/spf13/cobra"
)

const logDir = "log"

func newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <handle> <texto...>",
		Short: "Cifra e envia uma mensagem para um contato",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			return s.send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	}
}

func (s *session) send(ctx context.Context, handle, text string) error {
	peer, err := s.client.UserKey(ctx, handle)
	if err != nil {
		return err
	}
	_, err = s.identity.SendText(ctx, s.client, *peer, text)
	return err
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Mostra as conversas com mensagens não lidas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			rows, err := s.client.Summary(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTATO\tNÃO LIDAS\tÚLTIMA")
			for _, r := range rows {
				fmt.Fprintf(w, "@%s\t%d\t%s\n", r.Peer, r.Unread, time.UnixMilli(r.LastT).Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <handle>",
		Short: "Abre a conversa: mostra o histórico, acompanha ao vivo e envia o que for digitado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			store, err := locallog.Open(filepath.Join(s.home, logDir))
			if err != nil {
				return err
			}
			defer store.Close()
			return s.chat(cmd.Context(), cmd, store, args[0])
		},
	}
}

func (s *session) chat(ctx context.Context, cmd *cobra.Command, store *locallog.Log, peer string) error {
	out := cmd.OutOrStdout()
	syncer := chatsync.New(s.client, s.identity, store, logger(cmd))
	defer syncer.Flush(context.Background())

	owner := s.profile.Handle
	var mu sync.Mutex
	show := func(appended int, onlyNew bool) {
		mu.Lock()
		defer mu.Unlock()
		entries, err := store.Entries(owner, peer)
		if err != nil {
			fmt.Fprintln(out, "[!]", err)
			return
		}
		printLines(out, timeline.Render(entries, appended, time.Local), onlyNew)
	}

	if _, err := syncer.EnsureHistory(ctx, peer); err != nil {
		return err
	}
	if _, err := syncer.SyncNew(ctx, peer); err != nil {
		return err
	}
	unread, err := syncer.Unread(ctx, peer)
	if err != nil {
		return err
	}
	show(unread, false)
	if unread > 0 {
		syncer.ScheduleMarkRead(peer)
	}

	ctx, cancel := context.WithCancel(ctx)
	var followErr error
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		followErr = syncer.Follow(ctx, peer, func(appended int) { show(appended, true) })
	}()
	defer func() {
		cancel()
		<-followDone
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-followDone:
			if followErr != nil && ctx.Err() == nil {
				return followErr
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/q" || line == "/exit" {
				return nil
			}
			if err := s.send(ctx, peer, line); err != nil {
				mu.Lock()
				fmt.Fprintln(out, "[!]", err)
				mu.Unlock()
			}
		}
	}
}

// printLines imprime o timeline; com onlyNew começa no aviso de novas mensagens
func printLines(w io.Writer, lines []timeline.Line, onlyNew bool) {
	start := 0
	if onlyNew {
		start = len(lines)
		for i, l := range lines {
			if l.Kind == timeline.KindBanner {
				start = i
				break
			}
		}
	}
	for _, l := range lines[start:] {
		fmt.Fprintln(w, l.Text)
	}
}
