package conversation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/internal/events"
)

// RunConsole runs the conversation over text: every line read from in is a
// transcript, and replies are written to out. There is no wake phrase; the
// first enabled agent answers. It returns when in is exhausted or ctx is
// done.
func (o *Orchestrator) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("conversation: console input failed", "err", err)
		}
	}()

	slog.Info("conversation: console mode started")
	defer o.events.Publish(events.New(events.KindShutdown))

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		o.events.Publish(events.New(events.KindOk))

		ag := agent.Select(o.currentAgents(), "")
		if ag == nil {
			return errors.New("conversation: no enabled agent")
		}
		profile := ag.Profile()
		if IsStopWord(line, profile.StopWord) {
			fmt.Fprintln(out, "(conversation ended)")
			continue
		}
		if o.history.ExpireIfIdle() {
			slog.Info("conversation: chat history expired")
		}

		reply, _, err := o.think(ctx, ag, line)
		switch {
		case err == nil:
		case errors.Is(err, ErrShutdown) || ctx.Err() != nil:
			fmt.Fprintln(out)
			return nil
		case errors.Is(err, ErrHangup):
			fmt.Fprintln(out, "(hung up)")
			continue
		default:
			slog.Error("conversation: turn failed", "err", err)
			o.events.Publish(events.Error(err))
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		clean, _ := Continuation(reply)
		fmt.Fprintf(out, "%s: %s\n", profile.Name, clean)
		o.metrics.RecordTurn(ctx, profile.Name)
	}
}
