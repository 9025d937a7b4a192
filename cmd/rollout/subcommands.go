package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emilejacobs/rollout/internal/config"
	"github.com/emilejacobs/rollout/internal/creds"
	"github.com/emilejacobs/rollout/internal/deploy"
	"github.com/emilejacobs/rollout/internal/history"
	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/internal/platform"
	"github.com/emilejacobs/rollout/internal/report"
	"github.com/emilejacobs/rollout/internal/ssh"
	"github.com/emilejacobs/rollout/pkg/api"
)

// errHostsFailed marks a run that completed but left failed hosts.
// main maps it to its own exit code, distinct from config errors.
var errHostsFailed = errors.New("one or more hosts failed to deploy")

// loadHosts resolves the inventory: the CSV when a path is given,
// otherwise the hosts pinned in the config file.
func loadHosts(ctx context.Context, cfg config.Config, csvPath string, platforms platform.Table) ([]inventory.Host, error) {
	reg := inventory.NewRegistry()
	reg.Register(&inventory.CSVSource{Path: csvPath, Platforms: platforms})
	reg.Register(&inventory.StaticSource{Entries: cfg.Hosts, Platforms: platforms})

	name := "static"
	if csvPath != "" {
		name = "csv"
	}
	src, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	return src.Hosts(ctx)
}

// newExecutor builds the SSH executor from config: port, optional key
// auth and optional strict host key checking.
func newExecutor(cfg config.Config) (*deploy.SSHExecutor, error) {
	exec := &deploy.SSHExecutor{Port: cfg.SSH.Port}
	if cfg.SSH.KeyPath != "" {
		signer, err := ssh.LoadPrivateKeySigner(cfg.SSH.KeyPath)
		if err != nil {
			return nil, err
		}
		exec.Signer = signer
	}
	if cfg.SSH.KnownHosts != "" {
		cb, err := ssh.LoadKnownHostsCallback(cfg.SSH.KnownHosts)
		if err != nil {
			return nil, err
		}
		exec.KnownHosts = cb
	}
	return exec, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Create the deploy command
func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the Zabbix agent to fleet hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			csvPath, _ := cmd.Flags().GetString("inventory")
			hostFilter, _ := cmd.Flags().GetString("host")
			platFilter, _ := cmd.Flags().GetString("platform")
			resume, _ := cmd.Flags().GetBool("resume")
			retryFailed, _ := cmd.Flags().GetBool("retry-failed")
			force, _ := cmd.Flags().GetBool("force")
			fetch, _ := cmd.Flags().GetBool("fetch")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			yes, _ := cmd.Flags().GetBool("yes")
			token, _ := cmd.Flags().GetString("token")

			if cmd.Flags().Changed("scripts-dir") {
				cfg.ScriptsDir, _ = cmd.Flags().GetString("scripts-dir")
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir, _ = cmd.Flags().GetString("log-dir")
			}
			if cmd.Flags().Changed("state-file") {
				cfg.StateFile, _ = cmd.Flags().GetString("state-file")
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Concurrency, _ = cmd.Flags().GetInt("parallel")
				if cfg.Concurrency < 1 || cfg.Concurrency > deploy.MaxConcurrency {
					return fmt.Errorf("--parallel must be between 1 and %d", deploy.MaxConcurrency)
				}
			}
			if cfg.Concurrency > deploy.MaxConcurrency {
				cfg.Concurrency = deploy.MaxConcurrency
			}

			modeFlags := 0
			for _, set := range []bool{resume, retryFailed, force} {
				if set {
					modeFlags++
				}
			}
			if modeFlags > 1 {
				return errors.New("--resume, --retry-failed and --force are mutually exclusive")
			}
			selMode := deploy.SelectAll
			switch {
			case resume:
				selMode = deploy.SelectResume
			case retryFailed:
				selMode = deploy.SelectRetryFailed
			}

			platforms, err := cfg.PlatformTable()
			if err != nil {
				return err
			}
			hosts, err := loadHosts(cmd.Context(), cfg, csvPath, platforms)
			if err != nil {
				return err
			}

			state := deploy.OpenState(cfg.StateFile)
			selected, err := deploy.Select(hosts, deploy.Filter{Host: hostFilter, Platform: platFilter}, selMode, state)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				fmt.Println("Nothing to do: all selected hosts already succeeded.")
				return nil
			}

			token, err = creds.Resolve(token, !dryRun && !yes)
			if err != nil {
				return err
			}

			artifactMode := deploy.ModePush
			if fetch {
				artifactMode = deploy.ModeFetch
			}
			execTimeout := time.Duration(cfg.SSH.TimeoutSeconds) * time.Second

			exec, err := newExecutor(cfg)
			if err != nil {
				return err
			}
			proc := &deploy.Procedure{
				Exec:        exec,
				Platforms:   platforms,
				Token:       token,
				Mode:        artifactMode,
				ScriptsDir:  cfg.ScriptsDir,
				FetchBase:   cfg.FetchBase,
				LogDir:      cfg.LogDir,
				ExecTimeout: execTimeout,
			}

			report.Plan(os.Stdout, selected, artifactMode, cfg.Concurrency, token != "")
			if dryRun {
				report.DryRun(os.Stdout, selected, proc)
				return nil
			}
			if len(selected) > 1 && !yes {
				if !confirm(fmt.Sprintf("Deploy to %d hosts?", len(selected))) {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
			hist, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			done := 0
			orch := &deploy.Orchestrator{
				Proc:        proc,
				State:       state,
				History:     hist,
				Concurrency: cfg.Concurrency,
				OnOutcome: func(oc api.Outcome) {
					done++
					report.Progress(os.Stdout, oc, done, len(selected))
				},
			}

			res := orch.Run(cmd.Context(), selected)
			report.Summary(os.Stdout, res)
			if !res.Ok() {
				return errHostsFailed
			}
			return nil
		},
	}

	cmd.Flags().StringP("inventory", "i", "", "inventory CSV file (falls back to hosts in the config)")
	cmd.Flags().String("host", "", "deploy to a single named host")
	cmd.Flags().String("platform", "", "deploy only to hosts of this platform")
	cmd.Flags().Bool("resume", false, "skip hosts already deployed successfully")
	cmd.Flags().Bool("retry-failed", false, "deploy only to hosts that previously failed")
	cmd.Flags().Bool("force", false, "redeploy to every selected host, ignoring recorded state")
	cmd.Flags().Bool("fetch", false, "have hosts fetch the install script instead of pushing it")
	cmd.Flags().IntP("parallel", "p", 1, fmt.Sprintf("concurrent deployments (1-%d)", deploy.MaxConcurrency))
	cmd.Flags().Bool("dry-run", false, "show what would be done without connecting")
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().String("token", "", "Zabbix API token (overrides env, secrets.env and keyring)")
	cmd.Flags().String("scripts-dir", "", "directory containing the install scripts")
	cmd.Flags().String("log-dir", "", "directory for per-host deployment logs")
	cmd.Flags().String("state-file", "", "deployment state file")
	return cmd
}

// Create the check command
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check SSH connectivity to fleet hosts without deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			csvPath, _ := cmd.Flags().GetString("inventory")
			hostFilter, _ := cmd.Flags().GetString("host")
			platFilter, _ := cmd.Flags().GetString("platform")
			parallel, _ := cmd.Flags().GetInt("parallel")
			if parallel < 1 {
				parallel = 1
			}
			if parallel > deploy.MaxConcurrency {
				parallel = deploy.MaxConcurrency
			}

			platforms, err := cfg.PlatformTable()
			if err != nil {
				return err
			}
			hosts, err := loadHosts(cmd.Context(), cfg, csvPath, platforms)
			if err != nil {
				return err
			}
			selected, err := deploy.Select(hosts, deploy.Filter{Host: hostFilter, Platform: platFilter}, deploy.SelectAll, deploy.OpenState(cfg.StateFile))
			if err != nil {
				return err
			}

			exec, err := newExecutor(cfg)
			if err != nil {
				return err
			}

			rows := make([]report.ConnRow, len(selected))
			sem := make(chan struct{}, parallel)
			var wg sync.WaitGroup
			for i, h := range selected {
				wg.Add(1)
				go func(i int, h inventory.Host) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()
					probe := exec.Probe(cmd.Context(), h)
					rows[i] = report.ConnRow{Host: h.Name, Addr: h.Addr, Reachable: probe.Reachable, Diag: probe.Diag}
				}(i, h)
			}
			wg.Wait()

			report.Connectivity(os.Stdout, rows)
			for _, r := range rows {
				if !r.Reachable {
					return errHostsFailed
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("inventory", "i", "", "inventory CSV file (falls back to hosts in the config)")
	cmd.Flags().String("host", "", "check a single named host")
	cmd.Flags().String("platform", "", "check only hosts of this platform")
	cmd.Flags().IntP("parallel", "p", deploy.MaxConcurrency, "concurrent checks")
	return cmd
}

// Create the history command
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deployment attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			host, _ := cmd.Flags().GetString("host")
			limit, _ := cmd.Flags().GetInt("limit")

			hist, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			attempts, err := hist.Recent(cmd.Context(), host, limit)
			if err != nil {
				return err
			}
			report.History(os.Stdout, attempts)
			return nil
		},
	}
	cmd.Flags().String("host", "", "show attempts for one host only")
	cmd.Flags().Int("limit", 20, "maximum attempts to show")
	return cmd
}

// Create the token command
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored Zabbix API token",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the Zabbix API token in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Enter "+creds.EnvVar+": ")
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			if err := creds.Store(strings.TrimSpace(string(b))); err != nil {
				return err
			}
			fmt.Println("Token stored.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the Zabbix API token from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.Clear(); err != nil {
				return err
			}
			fmt.Println("Token cleared.")
			return nil
		},
	})
	return cmd
}
