package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/settings"
)

var kneeboardForce bool

// kneeboardRow is one listed item with its 1-based position
type kneeboardRow struct {
	Board                  settings.Board `json:"board" yaml:"board"`
	Position               int            `json:"position" yaml:"position"`
	settings.KneeboardItem `yaml:",inline"`
}

// kneeboardChange reports the outcome of an edit
type kneeboardChange struct {
	Action    string                  `json:"action" yaml:"action"`
	Board     settings.Board          `json:"board" yaml:"board"`
	Item      *settings.KneeboardItem `json:"item,omitempty" yaml:"item,omitempty"`
	Message   string                  `json:"message" yaml:"message"`
	Refreshed bool                    `json:"refreshed" yaml:"refreshed"`
}

func (c kneeboardChange) String() string {
	if c.Refreshed {
		return c.Message + " (server refreshed)"
	}
	return c.Message
}

func newKneeboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kneeboard",
		Aliases: []string{"kb"},
		Short:   "Manage the kneeboard lists in the server's settings.json",
		Long: `Manage the left and right kneeboard lists the server publishes.

Positions are 1-based as shown by "kneeboard list". Edits only touch the
kneeboards section of settings.json; a running server is asked to refresh
afterwards.`,
	}

	addCmd := &cobra.Command{
		Use:   "add <left|right> <file>...",
		Short: "Copy files into the kneeboard directory and list them",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runKneeboardAdd,
	}
	addCmd.Flags().BoolVarP(&kneeboardForce, "force", "f", false, "Replace files of the same name without asking")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [left|right]",
			Short: "Show the kneeboard lists",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runKneeboardList,
		},
		addCmd,
		&cobra.Command{
			Use:   "remove <left|right> <position>",
			Short: "Remove an item from a list (the file stays on disk)",
			Args:  cobra.ExactArgs(2),
			RunE:  runKneeboardRemove,
		},
		&cobra.Command{
			Use:   "move <left|right> <from> <to>",
			Short: "Reorder an item within a list",
			Args:  cobra.ExactArgs(3),
			RunE:  runKneeboardMove,
		},
		&cobra.Command{
			Use:   "transfer <left|right> <position> <left|right>",
			Short: "Move an item to the end of the other list",
			Args:  cobra.ExactArgs(3),
			RunE:  runKneeboardTransfer,
		},
		&cobra.Command{
			Use:   "enable <left|right> <position>",
			Short: "Publish an item",
			Args:  cobra.ExactArgs(2),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKneeboardSetEnabled(cmd, args, true) },
		},
		&cobra.Command{
			Use:   "disable <left|right> <position>",
			Short: "Keep an item listed but stop publishing it",
			Args:  cobra.ExactArgs(2),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKneeboardSetEnabled(cmd, args, false) },
		},
		&cobra.Command{
			Use:   "served <left|right>",
			Short: "Show what the running server currently publishes",
			Args:  cobra.ExactArgs(1),
			RunE:  runKneeboardServed,
		},
	)

	return cmd
}

func runKneeboardList(cmd *cobra.Command, args []string) error {
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return err
	}

	boards := []settings.Board{settings.Left, settings.Right}
	if len(args) == 1 {
		b, err := settings.ParseBoard(args[0])
		if err != nil {
			return err
		}
		boards = []settings.Board{b}
	}

	k, err := env.settingsStore().Load()
	if err != nil {
		return err
	}

	rows := make([]kneeboardRow, 0)
	for _, b := range boards {
		for i, item := range k.List(b) {
			rows = append(rows, kneeboardRow{Board: b, Position: i + 1, KneeboardItem: item})
		}
	}

	if !env.tabular() {
		return env.print(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "No kneeboards configured.")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			string(r.Board),
			strconv.Itoa(r.Position),
			enabledMark(r.Enabled),
			r.Path,
			r.Type,
		})
	}
	return env.printTable([]string{"BOARD", "#", "ENABLED", "PATH", "TYPE"}, table)
}

func runKneeboardAdd(cmd *cobra.Command, args []string) error {
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return err
	}
	board, err := settings.ParseBoard(args[0])
	if err != nil {
		return err
	}

	store := env.settingsStore()
	confirm := newOverwritePrompt(kneeboardForce)

	changes := make([]kneeboardChange, 0, len(args)-1)
	for _, src := range args[1:] {
		item, err := store.AddFile(board, src, confirm)
		if err != nil {
			return err
		}
		changes = append(changes, kneeboardChange{
			Action:  "add",
			Board:   board,
			Item:    &item,
			Message: fmt.Sprintf("Added %s to the %s kneeboard", item.Path, board),
		})
	}

	refreshed := refreshServer(cmd.Context(), env)
	for i := range changes {
		changes[i].Refreshed = refreshed
	}

	if env.tabular() {
		for _, c := range changes {
			fmt.Fprintln(os.Stdout, c.String())
		}
		return nil
	}
	return env.print(changes)
}

func runKneeboardRemove(cmd *cobra.Command, args []string) error {
	env, board, err := kneeboardTarget(cmd, args[0])
	if err != nil {
		return err
	}
	index, err := parsePosition(args[1])
	if err != nil {
		return err
	}

	item, err := env.settingsStore().Remove(board, index)
	if err != nil {
		return err
	}
	return reportChange(cmd.Context(), env, kneeboardChange{
		Action:  "remove",
		Board:   board,
		Item:    &item,
		Message: fmt.Sprintf("Removed %s from the %s kneeboard", item.Path, board),
	})
}

func runKneeboardMove(cmd *cobra.Command, args []string) error {
	env, board, err := kneeboardTarget(cmd, args[0])
	if err != nil {
		return err
	}
	from, err := parsePosition(args[1])
	if err != nil {
		return err
	}
	to, err := parsePosition(args[2])
	if err != nil {
		return err
	}

	if err := env.settingsStore().Move(board, from, to); err != nil {
		return err
	}
	return reportChange(cmd.Context(), env, kneeboardChange{
		Action:  "move",
		Board:   board,
		Message: fmt.Sprintf("Moved %s kneeboard item %d to position %d", board, from+1, to+1),
	})
}

func runKneeboardTransfer(cmd *cobra.Command, args []string) error {
	env, from, err := kneeboardTarget(cmd, args[0])
	if err != nil {
		return err
	}
	index, err := parsePosition(args[1])
	if err != nil {
		return err
	}
	to, err := settings.ParseBoard(args[2])
	if err != nil {
		return err
	}

	if err := env.settingsStore().Transfer(from, index, to); err != nil {
		return err
	}
	return reportChange(cmd.Context(), env, kneeboardChange{
		Action:  "transfer",
		Board:   to,
		Message: fmt.Sprintf("Moved %s kneeboard item %d to the end of the %s kneeboard", from, index+1, to),
	})
}

func runKneeboardSetEnabled(cmd *cobra.Command, args []string, enabled bool) error {
	env, board, err := kneeboardTarget(cmd, args[0])
	if err != nil {
		return err
	}
	index, err := parsePosition(args[1])
	if err != nil {
		return err
	}

	if err := env.settingsStore().SetEnabled(board, index, enabled); err != nil {
		return err
	}

	action, verb := "disable", "Disabled"
	if enabled {
		action, verb = "enable", "Enabled"
	}
	return reportChange(cmd.Context(), env, kneeboardChange{
		Action:  action,
		Board:   board,
		Message: fmt.Sprintf("%s %s kneeboard item %d", verb, board, index+1),
	})
}

func runKneeboardServed(cmd *cobra.Command, args []string) error {
	env, board, err := kneeboardTarget(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), env.cfg.RequestTimeout*2)
	defer cancel()

	listing, err := env.apiClient().Kneeboards(ctx, string(board))
	if err != nil {
		return err
	}

	if !env.tabular() {
		return env.print(listing)
	}
	if len(listing.Items) == 0 {
		fmt.Fprintf(os.Stdout, "The server publishes no %s kneeboards.\n", board)
		return nil
	}
	rows := make([][]string, 0, len(listing.Items))
	for i, item := range listing.Items {
		rows = append(rows, []string{strconv.Itoa(i + 1), item.Path, item.Type})
	}
	return env.printTable([]string{"#", "PATH", "TYPE"}, rows)
}

func kneeboardTarget(cmd *cobra.Command, boardArg string) (*commandEnv, settings.Board, error) {
	board, err := settings.ParseBoard(boardArg)
	if err != nil {
		return nil, "", err
	}
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return nil, "", err
	}
	return env, board, nil
}

// parsePosition turns a 1-based CLI position into a list index
func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, output.NewStructuredError(output.ErrCodeInvalidInput,
			fmt.Sprintf("invalid position %q: want a number starting at 1", s)).
			WithRecoveryCommand("bmsbridge-launcher kneeboard list")
	}
	return n - 1, nil
}

func reportChange(ctx context.Context, env *commandEnv, change kneeboardChange) error {
	change.Refreshed = refreshServer(ctx, env)
	if env.tabular() {
		fmt.Fprintln(os.Stdout, change.String())
		return nil
	}
	return env.print(change)
}

// refreshServer asks a running server to pick up the edit. A stopped server
// reads the file on its next start, so failures are not errors.
func refreshServer(ctx context.Context, env *commandEnv) bool {
	ctx, cancel := context.WithTimeout(ctx, env.cfg.RequestTimeout)
	defer cancel()

	if err := env.apiClient().RefreshKneeboards(ctx); err != nil {
		env.logger.Debugw("Kneeboard refresh skipped", "error", err)
		return false
	}
	return true
}

func enabledMark(enabled bool) string {
	if enabled {
		return "yes"
	}
	return "no"
}
