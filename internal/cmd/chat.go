package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/promptdeck/promptdeck/internal/app"
	"github.com/promptdeck/promptdeck/internal/conversation"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/spf13/cobra"
)

func init() {
	chatCmd.Flags().StringP("session", "s", "", "Session id or unique prefix (defaults to the most recently used)")
	chatCmd.Flags().Bool("no-stream", false, "Wait for the whole reply instead of streaming it")
	chatCmd.Flags().Int("retries", 0, "Retry a failed single-shot prompt this many times")
}

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Send a prompt to a session",
	Long: `Send a prompt to a session and print the reply. The prompt can be given as
arguments or piped from stdin. Press Ctrl-C to stop a reply; the partial text
is kept in the history.`,
	Example: heredoc.Doc(`
		promptdeck chat "What is the capital of Australia?"
		promptdeck chat -s 3f2a "And of New Zealand?"
		echo "Translate to German: good morning" | promptdeck chat --no-stream --retries 3
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := MaybePrependStdin(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if strings.TrimSpace(prompt) == "" {
			return errors.New("no prompt provided")
		}

		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		sessionID, err := activateSession(cmd, d)
		if err != nil {
			return err
		}

		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, addSignals([]os.Signal{os.Interrupt})...)
		defer signal.Stop(sigch)
		turnDone := make(chan struct{})
		defer close(turnDone)
		go func() {
			select {
			case <-sigch:
				d.orch.Cancel(sessionID)
			case <-turnDone:
			}
		}()

		noStream, _ := cmd.Flags().GetBool("no-stream")
		retries, _ := cmd.Flags().GetInt("retries")

		fmt.Println(userStyle.Render("you") + " " + prompt)
		fmt.Print(modelStyle.Render("model") + " ")

		w := &replyWriter{}
		subCtx, stopWatching := context.WithCancel(ctx)
		watched := make(chan struct{})
		if !noStream {
			events := d.app.Subscribe(subCtx)
			go func() {
				defer close(watched)
				for ev := range events {
					fmt.Print(w.delta(ev.Payload))
				}
			}()
		} else {
			close(watched)
		}

		res, err := d.orch.Submit(ctx, prompt, conversation.SubmitOptions{
			Streaming: !noStream,
			Retries:   retries,
		})
		stopWatching()
		<-watched
		if err != nil {
			fmt.Println()
			return err
		}
		fmt.Println(w.rest(res.Message))

		switch res.Outcome {
		case conversation.Errored:
			return res.Err
		case conversation.Cancelled:
			fmt.Println(subtleStyle.Render("(cancelled)"))
		}

		state := d.app.State()
		if state.ActiveSession != nil {
			fmt.Println(subtleStyle.Render("usage " + usageLine(*state.ActiveSession)))
		}
		if d.gateway.IsNearQuota(state.Handle, 0) {
			fmt.Println(warnStyle.Render("This session is close to its input quota; start a new one soon."))
		}
		return nil
	},
}

// activateSession opens the requested session, the most recently used one,
// or a new one when none exist.
func activateSession(cmd *cobra.Command, d *deck) (string, error) {
	ctx := cmd.Context()
	if arg, _ := cmd.Flags().GetString("session"); arg != "" {
		id, err := resolveSessionID(ctx, d, arg)
		if err != nil {
			return "", err
		}
		_, err = d.orch.OpenSession(ctx, id)
		return id, err
	}
	if sessions := d.app.State().Sessions; len(sessions) > 0 {
		_, err := d.orch.OpenSession(ctx, sessions[0].ID)
		return sessions[0].ID, err
	}
	session, err := d.orch.NewSession(ctx, conversation.NewSessionParams{OnProgress: printProgress})
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// replyWriter turns successive projections of a streaming reply into the
// text not printed yet.
type replyWriter struct {
	id      string
	printed string
}

func (w *replyWriter) delta(state app.State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role != proto.Assistant {
			continue
		}
		if w.id == "" && msg.IsStreaming {
			w.id = msg.ID
		}
		if msg.ID != w.id {
			continue
		}
		if !strings.HasPrefix(msg.Content, w.printed) {
			return ""
		}
		out := msg.Content[len(w.printed):]
		w.printed = msg.Content
		return out
	}
	return ""
}

// rest returns whatever part of the final message was not printed while
// streaming.
func (w *replyWriter) rest(msg proto.Message) string {
	if strings.HasPrefix(msg.Content, w.printed) {
		return msg.Content[len(w.printed):]
	}
	return "\n" + msg.Content
}
