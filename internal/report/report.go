package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/emilejacobs/rollout/internal/deploy"
	"github.com/emilejacobs/rollout/internal/history"
	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/pkg/api"
)

const divider = "============================================================"

// Plan prints what a run is about to do: host counts per platform,
// artifact mode, token presence, concurrency, and the host table.
func Plan(w io.Writer, hosts []inventory.Host, mode deploy.ArtifactMode, parallel int, tokenSet bool) {
	counts := map[string]int{}
	for _, h := range hosts {
		counts[h.Platform]++
	}
	platforms := make([]string, 0, len(counts))
	for p := range counts {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	fmt.Fprintf(w, "\n%s\n  DEPLOYMENT PLAN\n%s\n", divider, divider)
	fmt.Fprintf(w, "  Hosts:      %d\n", len(hosts))
	for _, p := range platforms {
		fmt.Fprintf(w, "    %s: %d\n", p, counts[p])
	}
	fmt.Fprintf(w, "  Method:     %s\n", methodLabel(mode))
	if tokenSet {
		fmt.Fprintf(w, "  API token:  provided\n")
	} else {
		fmt.Fprintf(w, "  API token:  not set (tags/inventory will be skipped)\n")
	}
	if parallel > 1 {
		fmt.Fprintf(w, "  Parallel:   %d concurrent\n", parallel)
	} else {
		fmt.Fprintf(w, "  Parallel:   sequential\n")
	}
	fmt.Fprintln(w, divider)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\n  HOST\tPLATFORM\tIP\tLOCATION\n")
	for _, h := range hosts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", h.Name, h.Platform, h.Addr, h.Location)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func methodLabel(mode deploy.ArtifactMode) string {
	if mode == deploy.ModeFetch {
		return "fetch (remote curl)"
	}
	return "push (SFTP)"
}

// DryRun prints the per-host preview without touching any host.
func DryRun(w io.Writer, hosts []inventory.Host, proc *deploy.Procedure) {
	fmt.Fprintln(w, "DRY RUN: no changes will be made")
	for _, h := range hosts {
		cmd, ready := proc.Preview(h)
		fmt.Fprintf(w, "\n  Host:     %s\n", h.Name)
		fmt.Fprintf(w, "  Platform: %s\n", h.Platform)
		fmt.Fprintf(w, "  IP:       %s\n", h.Addr)
		fmt.Fprintf(w, "  User:     %s\n", h.User)
		if !ready {
			fmt.Fprintf(w, "  WARNING:  local install script NOT FOUND\n")
		}
		fmt.Fprintf(w, "  Command:  %s\n", cmd)
	}
	fmt.Fprintf(w, "\n%d hosts would be deployed.\n", len(hosts))
}

// ConnRow is one connectivity-check result.
type ConnRow struct {
	Host      string
	Addr      string
	Reachable bool
	Diag      string
}

// Connectivity prints the check table and totals.
func Connectivity(w io.Writer, rows []ConnRow) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	ok := 0
	for _, r := range rows {
		symbol, status := "x", "FAIL: "+r.Diag
		if r.Reachable {
			symbol, status = "+", "OK"
			ok++
		}
		fmt.Fprintf(tw, "  [%s]\t%s\t%s\t%s\n", symbol, r.Host, r.Addr, status)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nReachable: %d/%d", ok, len(rows))
	if fail := len(rows) - ok; fail > 0 {
		fmt.Fprintf(w, "  |  Unreachable: %d", fail)
	}
	fmt.Fprintln(w)
}

// Progress prints one host's outcome as it completes.
func Progress(w io.Writer, oc api.Outcome, index, total int) {
	prefix := ""
	if index > 0 {
		prefix = fmt.Sprintf("[%d/%d] ", index, total)
	}
	if oc.Success {
		fmt.Fprintf(w, "  %s[+] %s SUCCESS (%s)\n", prefix, oc.Host, FormatDuration(oc.Duration))
		return
	}
	fmt.Fprintf(w, "  %s[x] %s FAILED (%s)\n", prefix, oc.Host, FormatDuration(oc.Duration))
	fmt.Fprintf(w, "       Error: %s\n", oc.Error)
	if oc.LogFile != "" {
		fmt.Fprintf(w, "       Log:   %s\n", oc.LogFile)
	}
}

// Summary prints the final totals and the per-host table.
func Summary(w io.Writer, res *api.RunResult) {
	fmt.Fprintf(w, "\n%s\n  DEPLOYMENT SUMMARY\n%s\n", divider, divider)
	fmt.Fprintf(w, "  Total hosts:      %d\n", len(res.Outcomes))
	fmt.Fprintf(w, "  Successful:       %d\n", res.Succeeded)
	fmt.Fprintf(w, "  Failed:           %d\n", res.Failed)
	fmt.Fprintf(w, "  Total duration:   %s\n", FormatDuration(res.Duration))
	fmt.Fprintf(w, "%s\n\n", divider)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  HOST\tSTATUS\tDURATION\n")
	for _, oc := range res.Outcomes {
		status := "OK"
		if !oc.Success {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", oc.Host, status, FormatDuration(oc.Duration))
	}
	tw.Flush()

	for _, oc := range res.Outcomes {
		if !oc.Success {
			fmt.Fprintf(w, "\n  %s\n    Error: %s\n", oc.Host, oc.Error)
			if oc.LogFile != "" {
				fmt.Fprintf(w, "    Log:   %s\n", oc.LogFile)
			}
		}
	}

	if res.Failed > 0 {
		fmt.Fprintf(w, "\nFailed hosts can be retried with:\n  rollout deploy --inventory <csv> --retry-failed\n")
	}
}

// History prints recent deployment attempts, newest first.
func History(w io.Writer, attempts []history.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No recorded attempts.")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  WHEN\tHOST\tPLATFORM\tSTATUS\tDURATION\tRUN\n")
	for _, a := range attempts {
		status := "OK"
		if !a.Success {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			a.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			a.Host, a.Platform, status, FormatDuration(a.Duration), shortID(a.RunID))
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatDuration renders durations the way operators read them:
// "<1s", "42s", "3m 07s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	secs := int(d.Seconds())
	if mins := secs / 60; mins > 0 {
		return fmt.Sprintf("%dm %02ds", mins, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}
