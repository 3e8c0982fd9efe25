package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/glamour/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/dustin/go-humanize"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	historyCmd.Flags().BoolP("markdown", "M", false, "Render model replies as markdown")
	clearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}

var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "Print the transcript of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		var id string
		switch {
		case len(args) == 1:
			if id, err = resolveSessionID(ctx, d, args[0]); err != nil {
				return err
			}
		case len(d.app.State().Sessions) > 0:
			id = d.app.State().Sessions[0].ID
		default:
			return errors.New("no sessions yet")
		}

		messages, err := d.store.GetMessagesForSession(ctx, id)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Println(subtleStyle.Render("No messages in this session."))
			return nil
		}

		var renderer *glamour.TermRenderer
		if markdown, _ := cmd.Flags().GetBool("markdown"); markdown {
			renderer, err = glamour.NewTermRenderer(
				glamour.WithStandardStyle("dark"),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				return fmt.Errorf("failed to create markdown renderer: %w", err)
			}
		}

		for _, m := range messages {
			label := userStyle.Render("you")
			content := m.Content
			if m.Role == proto.Assistant {
				label = modelStyle.Render("model")
				if renderer != nil && !m.IsError {
					if out, err := renderer.Render(content); err == nil {
						content = "\n" + strings.TrimRight(out, "\n")
					}
				}
			}
			switch {
			case m.IsError:
				content = errorStyle.Render(content + " [error]")
			case m.IsStreaming:
				content += subtleStyle.Render(" [incomplete]")
			}
			fmt.Println(label + " " + content)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every session and message as JSON",
	Example: heredoc.Doc(`
		promptdeck export backup.json
		promptdeck export | jq '.sessions | length'
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		snap, err := d.store.ExportAll(cmd.Context())
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := store.WriteSnapshot(w, snap); err != nil {
			return err
		}
		if w != os.Stdout {
			fmt.Fprintf(os.Stderr, "Exported %d sessions and %d messages to %s\n", len(snap.Sessions), len(snap.Messages), args[0])
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load sessions and messages from an export file",
	Long: `Load sessions and messages from an export file. Records with an id that
already exists are overwritten; nothing else is removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()
			r = f
		}
		snap, err := store.ReadSnapshot(r)
		if err != nil {
			return err
		}
		if err := d.store.ImportAll(cmd.Context(), snap); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Imported %d sessions and %d messages", len(snap.Sessions), len(snap.Messages))))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every session and message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("this deletes all data, pass --yes to confirm")
		}
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.store.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("All sessions and messages deleted"))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setupDeck(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		stats, err := d.store.StorageStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Storage"),
			field("Sessions", humanize.Comma(int64(stats.SessionCount))),
			field("Messages", humanize.Comma(int64(stats.MessageCount))),
			field("Approximate Size", humanize.Bytes(uint64(stats.ApproxBytes))),
			field("Checksum", stats.Checksum),
		))
		return nil
	},
}
