package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"bmsbridge-launcher/internal/monitor"
	"bmsbridge-launcher/internal/state"
)

// statusReport is the one-shot answer of the status command
type statusReport struct {
	BaseURL string                  `json:"base_url" yaml:"base_url"`
	PIDFile string                  `json:"pid_file" yaml:"pid_file"`
	PID     int                     `json:"pid,omitempty" yaml:"pid,omitempty"`
	Health  state.ServerHealthState `json:"health" yaml:"health"`
	View    state.View              `json:"view" yaml:"view"`
	Error   string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the BMS Bridge server health once",
		Long: `Query /api/health once and print the result.

An unreachable server is reported as STOPPED and exits with code 3.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), env.cfg.RequestTimeout*2)
	defer cancel()

	report, healthErr := collectStatus(ctx, env)

	if env.tabular() {
		if err := env.printTable([]string{"FIELD", "VALUE"}, statusRows(report)); err != nil {
			return err
		}
	} else if err := env.print(report); err != nil {
		return err
	}

	if errors.Is(healthErr, monitor.ErrHealthUnreachable) {
		return healthErr
	}
	return nil
}

// collectStatus builds the report. The returned error is the raw health
// error, already folded into the report.
func collectStatus(ctx context.Context, env *commandEnv) (*statusReport, error) {
	client := env.apiClient()
	report := &statusReport{
		BaseURL: client.BaseURL(),
		PIDFile: env.cfg.PIDFilePath(),
	}
	if pid, err := monitor.ReadPIDFile(report.PIDFile); err == nil {
		report.PID = pid
	}

	health, err := client.Health(ctx)
	var statusErr *monitor.HealthStatusError
	switch {
	case err == nil:
	case errors.As(err, &statusErr):
		report.Error = err.Error()
	case errors.Is(err, monitor.ErrHealthUnreachable):
		health = state.Stopped()
		report.Error = err.Error()
	default:
		health = state.Errored(err.Error())
		report.Error = err.Error()
	}

	report.Health = health
	report.View = state.Project(health, report.PID > 0)
	return report, err
}

func statusRows(r *statusReport) [][]string {
	rows := [][]string{
		{"Server", string(r.Health.ServerStatus)},
		{"BMS", string(r.Health.BMSStatus)},
		{"Summary", r.View.ServerText + " / " + r.View.BMSText},
	}
	if r.View.Address != "" {
		rows = append(rows, []string{"Address", r.View.Address})
	}
	if r.View.Message != "" {
		rows = append(rows, []string{"Message", r.View.Message})
	}
	pid := "-"
	if r.PID > 0 {
		pid = strconv.Itoa(r.PID)
	}
	rows = append(rows,
		[]string{"PID", pid},
		[]string{"Health URL", r.BaseURL},
	)
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	return rows
}
