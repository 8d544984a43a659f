// Package timeline transforma o log local de uma conversa nas linhas
// exibidas no terminal.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"pqchat-backend/internal/locallog"
)

type Kind int

const (
	KindDivider Kind = iota
	KindBanner
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindDivider:
		return "divider"
	case KindBanner:
		return "banner"
	case KindMessage:
		return "message"
	}
	return "unknown"
}

// Line é uma linha renderizada. Entry só é preenchido em KindMessage.
type Line struct {
	Kind  Kind
	Text  string
	Entry *locallog.Entry
}

// Render percorre entries (já em ordem (t, id)) e emite um divisor a cada
// troca de dia em loc. As últimas appended entradas ganham um aviso de
// novas mensagens logo antes da primeira delas, e antes do divisor do dia
// dela quando esse dia também começa ali.
func Render(entries []locallog.Entry, appended int, loc *time.Location) []Line {
	if loc == nil {
		loc = time.Local
	}
	if appended > len(entries) {
		appended = len(entries)
	}
	bannerAt := -1
	if appended > 0 {
		bannerAt = len(entries) - appended
	}

	lines := make([]Line, 0, len(entries)+4)
	var day string
	for i := range entries {
		e := &entries[i]
		ts := e.Time().In(loc)

		if i == bannerAt {
			lines = append(lines, Line{Kind: KindBanner, Text: Banner(appended)})
		}
		if key := ts.Format(time.DateOnly); key != day {
			day = key
			lines = append(lines, Line{Kind: KindDivider, Text: Divider(ts)})
		}
		lines = append(lines, Line{Kind: KindMessage, Text: formatMessage(e, ts), Entry: e})
	}
	return lines
}

// Banner é o aviso de novas mensagens
func Banner(n int) string {
	if n == 1 {
		return "1 new message!"
	}
	return fmt.Sprintf("%d new messages!", n)
}

func Divider(day time.Time) string {
	return "-- " + day.Format("Mon Jan 02 2006") + " --"
}

func formatMessage(e *locallog.Entry, ts time.Time) string {
	var b strings.Builder
	b.WriteString("[" + ts.Format("15:04") + "] ")

	if e.Outgoing {
		b.WriteString("me: ")
		if e.Text != "" {
			b.WriteString(e.Text)
		} else {
			b.WriteString("(encrypted for @" + e.To + ")")
		}
	} else {
		b.WriteString("@" + e.From + ": ")
		if e.DecryptFailed {
			b.WriteString("(could not decrypt)")
		} else {
			b.WriteString(e.Text)
		}
	}

	if !e.Verified {
		b.WriteString(" [signature verification failed]")
	}
	return b.String()
}
