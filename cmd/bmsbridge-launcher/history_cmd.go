package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/storage"
)

const historyLockTimeout = 200 * time.Millisecond

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the server lifecycle journal",
		Long: `Show recent server starts, stops, exits and status changes, newest first.

While a launcher is running it holds the journal; the records are then read
from its status endpoint when status_listen is configured.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of records to show (0 for all)")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return err
	}
	if historyLimit < 0 {
		return output.NewStructuredError(output.ErrCodeInvalidInput, "--limit must not be negative")
	}

	records, err := readHistory(cmd.Context(), env, historyLimit)
	if err != nil {
		return err
	}

	if records == nil {
		records = []*storage.Record{}
	}
	if !env.tabular() {
		return env.print(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "No lifecycle records yet.")
		return nil
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, historyRow(r))
	}
	return env.printTable([]string{"TIME", "KIND", "STATUS", "PID", "MESSAGE"}, rows)
}

// readHistory reads the journal directly, or through the running launcher
// when it holds the database lock
func readHistory(ctx context.Context, env *commandEnv, limit int) ([]*storage.Record, error) {
	journal, err := storage.OpenJournal(env.cfg.JournalPath(), storage.Options{
		ReadOnly: true,
		Timeout:  historyLockTimeout,
	}, env.logger)
	switch {
	case err == nil:
		defer journal.Close()
		return journal.List(limit)
	case errors.Is(err, fs.ErrNotExist):
		return []*storage.Record{}, nil
	case !errors.Is(err, storage.ErrJournalLocked):
		return nil, err
	}

	if env.cfg.StatusListen == "" {
		return nil, output.Wrap(err, output.ErrCodeJournalLocked).
			WithGuidance("Set status_listen in launcher.json to read history while the launcher runs, or close the launcher first")
	}

	env.logger.Debugw("Journal locked, reading history from running launcher", "listen", env.cfg.StatusListen)
	return fetchHistory(ctx, env, "http://"+env.cfg.StatusListen, limit)
}

func fetchHistory(ctx context.Context, env *commandEnv, baseURL string, limit int) ([]*storage.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, env.cfg.RequestTimeout*2)
	defer cancel()

	url := baseURL + "/api/launcher/history?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, output.NewStructuredError(output.ErrCodeJournalLocked,
			fmt.Sprintf("journal is locked and the launcher status endpoint did not answer: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read history response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("launcher status endpoint returned %s: %s", resp.Status, body)
	}

	var payload struct {
		Records []*storage.Record `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	return payload.Records, nil
}

func historyRow(r *storage.Record) []string {
	status := string(r.To)
	if r.From != "" {
		status = fmt.Sprintf("%s -> %s", r.From, r.To)
	}
	pid := "-"
	if r.PID > 0 {
		pid = strconv.Itoa(r.PID)
	}
	return []string{
		r.Timestamp.Local().Format("2006-01-02 15:04:05"),
		string(r.Kind),
		status,
		pid,
		r.Message,
	}
}
