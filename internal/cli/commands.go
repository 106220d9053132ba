package cli

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const cellWidth = 14

func newLayoutCmd() *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "layout [file]",
		Short: "Preview a board layout locally without creating a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readItems(cmd, args)
			if err != nil {
				return err
			}
			items, err := models.ParseItems(raw)
			if err != nil {
				return err
			}

			rng := services.DefaultRand
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewPCG(seed, seed))
			}
			printBoard(cmd.OutOrStdout(), services.GenerateLayout(items, rng), nil)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed the shuffle for a repeatable layout")
	return cmd
}

func newCreateCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "create [file]",
		Short: "Create a session from newline-separated items (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readItems(cmd, args)
			if err != nil {
				return err
			}
			session, err := opts.client().CreateSession(cmd.Context(), raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s\n", session.ID)
			fmt.Fprintf(out, "join: %s\n\n", services.JoinURL(opts.Server, session.ID))
			printBoard(out, session.Layout, nil)
			return nil
		},
	}
}

func newRecentCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List the most recently created sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := opts.client().Recent(cmd.Context())
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
}

func newJoinCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join a session as the current identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			resp, err := opts.client().Join(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if resp.Joined {
				fmt.Fprintf(cmd.OutOrStdout(), "joined %s as %s\n", args[0], resp.Participant.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "already in %s as %s\n", args[0], resp.Participant.Name)
			}
			return nil
		},
	}
}

func newToggleCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <session-id> <cell>",
		Short: "Mark or unmark a cell (0-23, row-major)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("cell must be a number: %w", err)
			}
			client := opts.client()
			participant, err := client.Toggle(cmd.Context(), args[0], index)
			if err != nil {
				return err
			}
			session, err := client.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBoard(cmd.OutOrStdout(), session.Layout, participant.CheckedIndices)
			return nil
		},
	}
}

func newRenameCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <name>",
		Short: "Change your display name in a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(opts); err != nil {
				return err
			}
			participant, err := opts.client().Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "now playing as %s\n", participant.Name)
			return nil
		},
	}
}

func newIdentityCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print a bearer token for the current identity, minting one if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Token(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "identity: %s\n", resp.Identity)
			fmt.Fprintf(out, "expires:  %s\n", resp.ExpiresAt.Format("2006-01-02 15:04 MST"))
			fmt.Fprintf(out, "export %s_TOKEN=%s\n", envPrefix, resp.Token)
			return nil
		},
	}
}

func newWatchCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [session-id]",
		Short: "Stream a session board, or the recent sessions feed when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client := opts.client()

			if len(args) == 0 {
				return client.Watch(cmd.Context(), "/ws/sessions", func(msg LiveMessage) error {
					return printFeedMessage(out, msg)
				})
			}

			if err := requireToken(opts); err != nil {
				return err
			}
			w := &sessionWatcher{out: out}
			return client.Watch(cmd.Context(), "/ws/sessions/"+args[0], w.handle)
		},
	}
}

// sessionWatcher redraws the caller's board whenever the session or the
// participant list changes.
type sessionWatcher struct {
	out          io.Writer
	self         string
	session      *models.Session
	participants []models.Participant
}

func (w *sessionWatcher) handle(msg LiveMessage) error {
	switch msg.Type {
	case "identity":
		w.self = msg.Identity
		return nil
	case "session":
		if msg.Status == models.SessionNotFound {
			fmt.Fprintln(w.out, "session not found, waiting for it to appear...")
			return nil
		}
		w.session = msg.Session
	case "participants":
		w.participants = msg.Participants
	case "error":
		fmt.Fprintf(w.out, "error: %s (%s)\n", msg.Error, msg.Code)
		return nil
	default:
		return nil
	}
	w.redraw()
	return nil
}

func (w *sessionWatcher) redraw() {
	if w.session == nil {
		return
	}
	var marked []int
	for _, p := range w.participants {
		if p.UserID == w.self {
			marked = p.CheckedIndices
		}
	}
	fmt.Fprintf(w.out, "\nsession %s\n", w.session.ID)
	printBoard(w.out, w.session.Layout, marked)
	for i, p := range w.participants {
		marker := " "
		if p.UserID == w.self {
			marker = "*"
		}
		fmt.Fprintf(w.out, "%s %d. %s (%d marked)\n", marker, i+1, p.Name, len(p.CheckedIndices))
	}
}

func printFeedMessage(out io.Writer, msg LiveMessage) error {
	switch msg.Type {
	case "sessions":
		fmt.Fprintln(out)
		printSummaries(out, msg.Sessions)
	case "error":
		return fmt.Errorf("%s: %s", msg.Code, msg.Error)
	}
	return nil
}

func printSummaries(out io.Writer, sessions []models.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions yet")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %2d players  %2d items  %s\n", s.ID, s.ParticipantCount, s.ItemCount, s.Preview)
	}
}

// printBoard writes the layout as a grid. Marked cells are wrapped in
// brackets and gaps are left blank.
func printBoard(out io.Writer, layout models.Layout, marked []int) {
	isMarked := make(map[int]bool, len(marked))
	for _, i := range marked {
		isMarked[i] = true
	}

	for r := 0; r < models.Rows; r++ {
		cells := make([]string, 0, models.Cols)
		for c, slot := range layout.Row(r) {
			index := r*models.Cols + c
			text := ""
			if slot != nil {
				text = fit(*slot, cellWidth-2)
				if isMarked[index] {
					text = "[" + text + "]"
				}
			}
			cells = append(cells, text+strings.Repeat(" ", cellWidth-utf8.RuneCountInString(text)))
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, "|"), " "))
	}
}

func fit(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "~"
}

func readItems(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading items: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading items: %w", err)
	}
	return string(data), nil
}

func requireToken(opts *Options) error {
	if opts.Token == "" {
		return fmt.Errorf("no identity token; run `bingoctl identity` and set %s_TOKEN", envPrefix)
	}
	return nil
}
