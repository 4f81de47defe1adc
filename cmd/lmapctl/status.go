package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/pidfile"
	"github.com/lmapd/lmapd/internal/report"
)

func readDaemonPid(flags *ctlFlags) (int, bool) {
	return pidfile.ReadRunning(filepath.Join(flags.runPath, "pid"))
}

func signalDaemon(flags *ctlFlags, sig syscall.Signal) error {
	pid, running := readDaemonPid(flags)
	if !running {
		return fmt.Errorf("daemon is not running")
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}

func newStatusCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "dump and pretty-print the daemon's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := signalDaemon(flags, syscall.SIGUSR1); err != nil {
				return err
			}
			time.Sleep(statusSettle)

			data, err := os.ReadFile(filepath.Join(flags.runPath, "status"))
			if err != nil {
				return fmt.Errorf("read status file: %w", err)
			}
			if flags.xmlOut {
				os.Stdout.Write(data)
				return nil
			}

			st, err := config.ParseStateXML(data)
			if err != nil {
				return err
			}
			printState(st)
			return nil
		},
	}
}

func printState(st *config.State) {
	if st.Agent.AgentID != "" {
		fmt.Printf("agent %s", st.Agent.AgentID)
		if st.Agent.LastStarted != "" {
			fmt.Printf(" (started %s)", st.Agent.LastStarted)
		}
		fmt.Println()
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Schedule/Action", "State", "Inv", "Sup", "Ovl", "Fail", "Storage", "Last Invocation"})
	for _, row := range st.ScheduleStates() {
		t.AppendRow(table.Row{
			row.Name, row.State,
			row.Invocations, row.Suppressions, row.Overlaps, row.Failures,
			row.Storage, row.LastInvocation,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	if len(st.Suppressions) > 0 {
		s := table.NewWriter()
		s.SetOutputMirror(os.Stdout)
		s.AppendHeader(table.Row{"Suppression", "State"})
		for _, p := range st.Suppressions {
			s.AppendRow(table.Row{p.Name, p.State})
		}
		s.SetStyle(table.StyleLight)
		s.Render()
	}
}

func newReportCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "collect results from the working directory and render the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rep, err := report.Collect(cfg, ".", time.Now())
			if err != nil {
				return err
			}
			var out []byte
			if flags.jsonOut {
				out, err = report.RenderJSON(rep)
			} else {
				out, err = report.RenderXML(rep)
			}
			if err != nil {
				return err
			}
			os.Stdout.Write(out)
			return nil
		},
	}
}
