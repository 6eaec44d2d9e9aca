package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wealthops/wealthops-backend/internal/config"
	"github.com/wealthops/wealthops-backend/internal/copilot"
	"github.com/wealthops/wealthops-backend/internal/platform/envutil"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

var (
	flagConfigPath      string
	flagOrchestratorURL string
	flagNL2SQLURL       string
	flagHousehold       string
)

func main() {
	root := &cobra.Command{
		Use:   "copilot",
		Short: "Interactive advisor copilot chat",
		Long: `Chat with the wealth management copilot from the terminal.

Questions are streamed from the orchestrator when possible and fall back
to a synchronous request when streaming is unavailable.`,
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&flagConfigPath, "config", "", "path to YAML config file")
	root.Flags().StringVar(&flagOrchestratorURL, "orchestrator-url", "", "orchestrator base URL")
	root.Flags().StringVar(&flagNL2SQLURL, "nl2sql-url", "", "NL2SQL agent base URL")
	root.Flags().StringVar(&flagHousehold, "household", "", "household scope for queries")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log, err := logger.New(envutil.Str("LOG_MODE", "prod"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	path := flagConfigPath
	if path == "" {
		path = envutil.Str("CONFIG_PATH", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if flagOrchestratorURL != "" {
		cfg.OrchestratorURL = flagOrchestratorURL
	}
	if flagNL2SQLURL != "" {
		cfg.NL2SQLAgentURL = flagNL2SQLURL
	}
	if flagHousehold != "" {
		cfg.HouseholdID = flagHousehold
	}

	ui := &terminalNotifier{out: cmd.OutOrStdout()}
	session := copilot.NewSession(copilot.Config{
		OrchestratorURL: cfg.OrchestratorURL,
		NL2SQLAgentURL:  cfg.NL2SQLAgentURL,
		HouseholdID:     cfg.HouseholdID,
		HealthTimeout:   cfg.HealthTimeout(),
		HealthInterval:  cfg.HealthInterval(),
	}, log, ui)

	session.StartHealthChecks()
	defer session.StopHealthChecks()

	ui.printTranscript(session.Transcript())
	fmt.Fprintln(ui.out, "Commands: /status, /reset, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(ui.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			session.Reset()
			continue
		case "/status":
			printStatus(ui.out, session.RefreshServiceStatus(cmd.Context()))
			continue
		}
		session.SubmitQuery(context.Background(), line)
	}
	return scanner.Err()
}

func printStatus(out io.Writer, status copilot.ServiceStatus) {
	fmt.Fprintf(out, "orchestrator: %s  nl2sql: %s\n",
		statusWord(status.Orchestrator), statusWord(status.NL2SQL))
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unreachable"
}
