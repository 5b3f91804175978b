package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bmsbridge-launcher/internal/monitor"
)

type stopResult struct {
	Stopped bool   `json:"stopped" yaml:"stopped"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Method  string `json:"method" yaml:"method"`
}

func (r stopResult) String() string {
	if r.PID > 0 {
		return fmt.Sprintf("Stopped BMS Bridge server tree (pid %d)", r.PID)
	}
	return "Stopped BMS Bridge server by image name"
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the BMS Bridge server without opening the launcher",
		Long: `Terminate the server process tree recorded in the PID file. Without a
PID file every process running the server executable is terminated.`,
		Args: cobra.NoArgs,
		RunE: runStop,
	}
}

func runStop(cmd *cobra.Command, _ []string) error {
	env, err := loadCommandEnv(cmd)
	if err != nil {
		return err
	}

	res := stopResult{Method: "image_name"}
	if pid, err := monitor.ReadPIDFile(env.cfg.PIDFilePath()); err == nil {
		res.PID = pid
		res.Method = "pid_file"
	}

	sup := monitor.NewSupervisor(&monitor.ProcessConfig{
		Executable:      env.cfg.ExecutablePath(),
		WorkingDir:      env.cfg.ServerDir,
		PIDFile:         env.cfg.PIDFilePath(),
		LogFile:         env.cfg.LogFilePath(),
		StopGracePeriod: env.cfg.StopGracePeriod,
	}, env.logger)
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), env.cfg.StopGracePeriod+exitTimeout)
	defer cancel()

	if err := sup.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	res.Stopped = true

	if env.tabular() {
		fmt.Fprintln(os.Stdout, res.String())
		return nil
	}
	return env.print(res)
}
