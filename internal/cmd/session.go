package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/promptdeck/promptdeck/internal/conversation"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/spf13/cobra"
)

var errAmbiguousSession = errors.New("session id prefix is ambiguous")

func init() {
	sessionNewCmd.Flags().String("name", "", "Session name")
	sessionNewCmd.Flags().Int("top-k", 0, "Top-K sampling value")
	sessionNewCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	sessionNewCmd.Flags().String("system", "", "System prompt")
	sessionNewCmd.Flags().StringArray("seed", nil, "Initial turn as role:content (repeatable)")

	sessionSetCmd.Flags().Int("top-k", 0, "Top-K sampling value")
	sessionSetCmd.Flags().Float64("temperature", 0, "Sampling temperature")

	sessionCmd.AddCommand(
		sessionNewCmd,
		sessionListCmd,
		sessionRenameCmd,
		sessionSetCmd,
		sessionDeleteCmd,
		sessionCloneCmd,
	)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage model sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a model session",
	Example: heredoc.Doc(`
		promptdeck session new --name poet --temperature 1.5 --top-k 5
		promptdeck session new --system "Answer in French" --seed "user:Bonjour" --seed "assistant:Salut !"
	`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		params := conversation.NewSessionParams{
			OnProgress: printProgress,
		}
		params.Name, _ = cmd.Flags().GetString("name")
		if cmd.Flags().Changed("top-k") {
			k, _ := cmd.Flags().GetInt("top-k")
			params.TopK = &k
		}
		if cmd.Flags().Changed("temperature") {
			t, _ := cmd.Flags().GetFloat64("temperature")
			params.Temperature = &t
		}
		if system, _ := cmd.Flags().GetString("system"); system != "" {
			params.InitialPrompts = append(params.InitialPrompts, proto.SeedTurn{Role: proto.SeedSystem, Content: system})
		}
		seeds, _ := cmd.Flags().GetStringArray("seed")
		for _, raw := range seeds {
			turn, err := parseSeed(raw)
			if err != nil {
				return err
			}
			params.InitialPrompts = append(params.InitialPrompts, turn)
		}

		session, err := d.orch.NewSession(cmd.Context(), params)
		if err != nil {
			return err
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left,
			successStyle.Render("Session created"),
			field("ID", session.ID),
			field("Name", session.Name),
			field("Usage", usageLine(session)),
		))
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, most recently used first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		state := d.app.State()
		if state.Error != "" {
			return errors.New(state.Error)
		}
		if len(state.Sessions) == 0 {
			fmt.Println(subtleStyle.Render("No sessions yet. Create one with `promptdeck session new`."))
			return nil
		}
		fmt.Println(renderSessions(state.Sessions))
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		id, err := resolveSessionID(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		name := strings.Join(args[1:], " ")
		session, err := d.orch.UpdateSession(cmd.Context(), id, proto.UpdateSessionParams{Name: &name})
		if err != nil {
			return err
		}
		fmt.Println(field("Renamed", session.Name))
		return nil
	},
}

var sessionSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Change the sampling configuration of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		id, err := resolveSessionID(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		var params proto.UpdateSessionParams
		if cmd.Flags().Changed("top-k") {
			k, _ := cmd.Flags().GetInt("top-k")
			params.TopK = &k
		}
		if cmd.Flags().Changed("temperature") {
			t, _ := cmd.Flags().GetFloat64("temperature")
			params.Temperature = &t
		}
		if params.TopK == nil && params.Temperature == nil {
			return errors.New("nothing to change, pass --top-k or --temperature")
		}
		session, err := d.orch.UpdateSession(cmd.Context(), id, params)
		if err != nil {
			return err
		}
		fmt.Println(field("Updated", session.Name))
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session and its messages",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		id, err := resolveSessionID(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		if err := d.orch.DeleteSession(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Deleted " + id))
		return nil
	},
}

var sessionCloneCmd = &cobra.Command{
	Use:   "clone <id>",
	Short: "Duplicate a session, transcript included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		id, err := resolveSessionID(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		if _, err := d.orch.OpenSession(cmd.Context(), id); err != nil {
			return err
		}
		clone, err := d.orch.CloneSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left,
			successStyle.Render("Session cloned"),
			field("ID", clone.ID),
			field("Name", clone.Name),
		))
		return nil
	},
}

// parseSeed parses a role:content initial turn.
func parseSeed(raw string) (proto.SeedTurn, error) {
	role, content, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(content) == "" {
		return proto.SeedTurn{}, fmt.Errorf("invalid seed %q, expected role:content", raw)
	}
	turn := proto.SeedTurn{Role: proto.SeedRole(strings.ToLower(strings.TrimSpace(role))), Content: content}
	if !turn.Role.Valid() {
		return proto.SeedTurn{}, fmt.Errorf("invalid seed role %q", role)
	}
	return turn, nil
}

// resolveSessionID accepts a full id or a unique prefix of one.
func resolveSessionID(ctx context.Context, d *deck, arg string) (string, error) {
	if _, found, err := d.store.GetSession(ctx, arg); err != nil {
		return "", err
	} else if found {
		return arg, nil
	}
	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", errAmbiguousSession, arg)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", conversation.ErrSessionNotFound, arg)
	}
	return match, nil
}

func usageLine(s proto.Session) string {
	if s.InputQuota <= 0 {
		return humanize.Comma(s.InputUsage)
	}
	return fmt.Sprintf("%s / %s tokens", humanize.Comma(s.InputUsage), humanize.Comma(s.InputQuota))
}

// truncateName shortens name to at most width terminal cells.
func truncateName(name string, width int) string {
	return ansi.Truncate(name, width, "…")
}

func renderSessions(sessions []proto.Session) string {
	idCol := lipgloss.NewStyle().Width(10)
	nameCol := lipgloss.NewStyle().Width(28)
	whenCol := lipgloss.NewStyle().Width(18)

	rows := []string{
		subtleStyle.Render(idCol.Render("ID") + nameCol.Render("NAME") + whenCol.Render("UPDATED") + "USAGE"),
	}
	for _, s := range sessions {
		rows = append(rows, idCol.Render(shortID(s.ID))+
			textStyle.Render(nameCol.Render(truncateName(s.Name, 26)))+
			subtleStyle.Render(whenCol.Render(humanize.Time(time.UnixMilli(s.UpdatedAt))))+
			usageLine(s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printProgress(loaded int64, total *int64) {
	if total == nil {
		fmt.Fprintf(os.Stderr, "\rDownloading model: %s", humanize.Bytes(uint64(loaded)))
		return
	}
	fmt.Fprintf(os.Stderr, "\rDownloading model: %s / %s", humanize.Bytes(uint64(loaded)), humanize.Bytes(uint64(*total)))
	if loaded >= *total {
		fmt.Fprintln(os.Stderr)
	}
}
