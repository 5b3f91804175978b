package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/config"
	"bmsbridge-launcher/internal/logs"
	"bmsbridge-launcher/internal/monitor"
	"bmsbridge-launcher/internal/settings"
	"bmsbridge-launcher/internal/storage"

	"go.uber.org/zap"
)

var (
	configFile   string
	serverDir    string
	serverURL    string
	dataDir      string
	logLevel     string
	logToFile    bool
	logDir       string
	outputFormat string
	jsonOutput   bool

	version = "v0.1.0" // This will be injected by -ldflags during build
)

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bmsbridge-launcher",
		Short:         "BMS Bridge Launcher - start, stop and watch the BMS Bridge server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLauncher,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Launcher configuration file (default: <data-dir>/launcher.json)")
	pf.StringVar(&serverDir, "server-dir", "", "BMS Bridge server directory (default: Server next to the launcher)")
	pf.StringVar(&serverURL, "server-url", "", "Server base URL (default: http://localhost:<server_port>)")
	pf.StringVarP(&dataDir, "data-dir", "d", "", "Launcher data directory")
	pf.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pf.BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in standard OS location")
	pf.StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	pf.StringVarP(&outputFormat, "output", "o", "", "Output format (table, json, yaml)")
	pf.BoolVar(&jsonOutput, "json", false, "Shorthand for --output json")

	addRunFlags(rootCmd)

	rootCmd.AddCommand(
		newStatusCmd(),
		newStopCmd(),
		newKneeboardCmd(),
		newHistoryCmd(),
	)

	return rootCmd
}

// commandEnv is what every one-shot subcommand needs
type commandEnv struct {
	cfg       *config.Config
	logger    *zap.SugaredLogger
	format    string
	formatter output.OutputFormatter
}

func loadCommandEnv(cmd *cobra.Command) (*commandEnv, error) {
	format := strings.ToLower(output.ResolveFormat(outputFormat, jsonOutput))
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return nil, output.NewStructuredError(output.ErrCodeInvalidOutputFormat, err.Error())
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, output.Wrap(err, output.ErrCodeConfigInvalid).
			WithGuidance("Check the launcher configuration file and BMSB_* environment variables")
	}

	zl, err := logs.SetupCommandLogger(logLevel, logToFile, logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	return &commandEnv{cfg: cfg, logger: zl.Sugar(), format: format, formatter: formatter}, nil
}

// settingsStore opens the server's settings.json
func (e *commandEnv) settingsStore() *settings.Store {
	return settings.NewStore(e.cfg.SettingsFilePath(), e.cfg.KneeboardDirPath(), e.logger)
}

// apiClient talks to the server at the configured or settings-derived URL
func (e *commandEnv) apiClient() *monitor.APIClient {
	port := e.settingsStore().ServerPort()
	return monitor.NewAPIClient(e.cfg.HealthBaseURL(port), e.cfg.RequestTimeout, e.logger)
}

// tabular reports whether results should be printed as a table
func (e *commandEnv) tabular() bool {
	return e.format == "table"
}

func (e *commandEnv) print(data interface{}) error {
	out, err := e.formatter.Format(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, out)
	return nil
}

func (e *commandEnv) printTable(headers []string, rows [][]string) error {
	out, err := e.formatter.FormatTable(headers, rows)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}

// reportError prints err in the selected output format on stderr
func reportError(err error) {
	code := output.ErrCodeOperationFailed
	switch {
	case errors.Is(err, monitor.ErrExecutableNotFound):
		code = output.ErrCodeExecutableNotFound
	case errors.Is(err, monitor.ErrHealthUnreachable):
		code = output.ErrCodeServerUnreachable
	case errors.Is(err, settings.ErrAddCancelled):
		code = output.ErrCodeCancelled
	case errors.Is(err, settings.ErrNotObject):
		code = output.ErrCodeSettingsInvalid
	case errors.Is(err, storage.ErrJournalLocked):
		code = output.ErrCodeJournalLocked
	case errors.Is(err, settings.ErrIndexOutOfRange), errors.Is(err, settings.ErrInvalidBoard):
		code = output.ErrCodeInvalidInput
	}
	se := output.FromError(err, code)

	formatter, ferr := output.NewFormatter(output.ResolveFormat(outputFormat, jsonOutput))
	if ferr != nil {
		formatter = &output.TableFormatter{Condensed: true}
	}
	text, ferr := formatter.FormatError(se)
	if ferr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, text)
}
