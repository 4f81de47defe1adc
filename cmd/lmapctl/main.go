// Command lmapctl is the control companion of lmapd: it talks to a
// running daemon solely through signals and the pid/status files in the
// run directory, and renders configuration and report documents
// offline.
package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmapd/lmapd/internal/build"
	"github.com/lmapd/lmapd/internal/config"
)

type ctlFlags struct {
	configPath string
	queuePath  string
	runPath    string
	chdir      string
	jsonOut    bool
	xmlOut     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &ctlFlags{}

	root := &cobra.Command{
		Use:          "lmapctl",
		Short:        "control a running lmapd measurement agent",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.chdir != "" {
				if err := os.Chdir(flags.chdir); err != nil {
					return fmt.Errorf("chdir %s: %w", flags.chdir, err)
				}
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultConfigDir(), "configuration file or directory")
	pf.StringVarP(&flags.queuePath, "queue", "q", config.DefaultQueueDir(), "queue directory root")
	pf.StringVarP(&flags.runPath, "run", "r", config.DefaultRunDir(), "run directory (pid and status files)")
	pf.StringVarP(&flags.chdir, "chdir", "C", "", "change to this directory first")
	pf.BoolVarP(&flags.jsonOut, "json", "j", false, "render documents as JSON")
	pf.BoolVarP(&flags.xmlOut, "xml", "x", false, "render documents as XML (default)")

	root.AddCommand(
		newCleanCmd(flags),
		newConfigCmd(flags),
		newReloadCmd(flags),
		newReportCmd(flags),
		newRunningCmd(flags),
		newShutdownCmd(flags),
		newStatusCmd(flags),
		newValidateCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", build.AppName, build.Version)
		},
	}
}

func newCleanCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "ask the daemon to wipe and re-initialise its queue workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalDaemon(flags, syscall.SIGUSR2)
		},
	}
}

func newReloadCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "ask the daemon to reload its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalDaemon(flags, syscall.SIGHUP)
		},
	}
}

func newShutdownCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "ask the daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signalDaemon(flags, syscall.SIGTERM)
		},
	}
}

func newRunningCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "exit successfully iff the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, running := readDaemonPid(flags)
			if !running {
				return fmt.Errorf("daemon is not running")
			}
			fmt.Printf("daemon running (pid %d)\n", pid)
			return nil
		},
	}
}

func newValidateCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(flags); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}
}

func newConfigCmd(flags *ctlFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "render the validated configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var out []byte
			if flags.jsonOut {
				out, err = config.RenderJSON(cfg)
			} else {
				out, err = config.RenderXML(cfg)
			}
			if err != nil {
				return err
			}
			os.Stdout.Write(out)
			return nil
		},
	}
}

func loadConfig(flags *ctlFlags) (*config.Configuration, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// statusSettle is how long `status` waits between kicking the daemon
// with SIGUSR1 and reading the freshly rendered status file.
const statusSettle = 87654 * time.Microsecond
