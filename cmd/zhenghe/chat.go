package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zhenghe/internal/app"
	"zhenghe/internal/core"
)

// session is the part of the conversation the REPL drives.
type session interface {
	ConversationID() string
	ListModels(ctx context.Context) ([]core.Model, error)
	SendChatTurn(ctx context.Context, message, model string, maxTokens ...int) (*core.ChatResponse, error)
	History() []core.ChatMessage
	ClearHistory()
	DefaultMaxTokens() int
	SetDefaultMaxTokens(n int)
}

const replHelp = `Commands:
  /clear         forget the conversation so far
  /history       print the conversation so far
  /models        list available models
  /model <id>    switch model for the following turns
  /tokens [n]    show or set the default token limit
  /id            print the conversation id
  /exit          quit`

func newChatCmd(c *cli) *cobra.Command {
	var (
		model     string
		maxTokens int
		resume    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: "Start an interactive conversation. Every line is sent as a user turn " +
			"together with the history so far. Lines starting with / are commands; " +
			"type /help to list them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, app.Options{ConversationID: resume})
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			conv := a.Conversation()
			if maxTokens > 0 {
				conv.SetDefaultMaxTokens(maxTokens)
			}
			if model == "" {
				model = c.cfg.API.Model
			}

			r := &repl{
				session:     conv,
				model:       model,
				in:          cmd.InOrStdin(),
				out:         cmd.OutOrStdout(),
				interactive: stdinIsTerminal(cmd.InOrStdin()),
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model id (default: configured api.model)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "default token limit for each turn")
	cmd.Flags().StringVar(&resume, "resume", "", "resume a recorded conversation by id")
	return cmd
}

func stdinIsTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type repl struct {
	session     session
	model       string
	in          io.Reader
	out         io.Writer
	interactive bool
}

// run reads lines until EOF, /exit or ctx cancellation. Turn failures are
// reported and the loop continues.
func (r *repl) run(ctx context.Context) error {
	if r.interactive {
		fmt.Fprintf(r.out, "Conversation %s with %s. Type /help for commands.\n", r.session.ConversationID(), r.model)
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, readErr := r.readLines(readCtx)

	for {
		if r.interactive {
			fmt.Fprint(r.out, "> ")
		}

		var raw string
		select {
		case <-ctx.Done():
			if r.interactive {
				fmt.Fprintln(r.out)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			raw = line
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.turn(ctx, line)
	}
}

// readLines scans r.in on its own goroutine so that run can also wait on
// ctx. The lines channel is closed at EOF, after the scan error (possibly
// nil) has been sent. A goroutine blocked in a read outlives a cancelled
// run until the read returns.
func (r *repl) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	return lines, readErr
}

func (r *repl) turn(ctx context.Context, line string) {
	resp, err := r.session.SendChatTurn(ctx, line, r.model)
	if err != nil {
		fmt.Fprintln(r.out, "error:", describeError(err))
		return
	}
	content, err := resp.Content()
	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	fmt.Fprintln(r.out, content)
}

func (r *repl) command(ctx context.Context, line string) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/clear":
		r.session.ClearHistory()
		fmt.Fprintln(r.out, "history cleared")
	case "/history":
		history := r.session.History()
		if len(history) == 0 {
			fmt.Fprintln(r.out, "(empty)")
		}
		for _, m := range history {
			fmt.Fprintf(r.out, "%s: %s\n", m.Role, m.Content)
		}
	case "/models":
		models, err := r.session.ListModels(ctx)
		if err != nil {
			fmt.Fprintln(r.out, "error:", describeError(err))
			break
		}
		for _, m := range models {
			marker := " "
			if m.ID == r.model {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s (%s)\n", marker, m.ID, m.OwnedBy)
		}
	case "/model":
		if arg == "" {
			fmt.Fprintln(r.out, r.model)
			break
		}
		r.model = arg
		fmt.Fprintln(r.out, "model set to", arg)
	case "/tokens":
		if arg == "" {
			fmt.Fprintln(r.out, r.session.DefaultMaxTokens())
			break
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			fmt.Fprintln(r.out, "error: token limit must be a positive integer")
			break
		}
		r.session.SetDefaultMaxTokens(n)
		fmt.Fprintln(r.out, "default token limit set to", n)
	case "/id":
		fmt.Fprintln(r.out, r.session.ConversationID())
	default:
		fmt.Fprintf(r.out, "unknown command %s, type /help\n", name)
	}
	return false
}

// describeError prefers the API's own message over the transport summary.
func describeError(err error) string {
	var failed *core.RequestFailedError
	if errors.As(err, &failed) {
		if msg := failed.APIMessage(); msg != "" {
			slog.Debug("api error", "error", err)
			return fmt.Sprintf("%s (HTTP %d)", msg, failed.StatusCode)
		}
	}
	return err.Error()
}
