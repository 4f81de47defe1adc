// Command lmapd is the measurement agent daemon: it loads the LMAP
// configuration, arms the event timers, and runs the scheduling engine
// until stopped (SIGTERM/SIGINT) or restarted (SIGHUP).
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lmapd/lmapd/internal/build"
	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/pidfile"
	"github.com/lmapd/lmapd/internal/scheduler"
	"github.com/lmapd/lmapd/internal/sigfrontend"
	"github.com/lmapd/lmapd/internal/workspace"
)

type daemonFlags struct {
	foreground  bool // -f: detach into the background
	renderOnly  bool // -n: parse config, render config-XML, exit
	renderState bool // -s: parse config, render state-XML, exit
	wipe        bool // -z: wipe workspace before starting
	queuePath   string
	configPath  string
	runPath     string
	showVersion bool
	debug       bool
	logFormat   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &daemonFlags{}

	cmd := &cobra.Command{
		Use:           "lmapd",
		Short:         "LMAP measurement agent daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.foreground, "daemonize", "f", false, "detach and run in the background")
	cmd.Flags().BoolVarP(&flags.renderOnly, "render-config", "n", false, "parse the configuration, render it as XML, and exit")
	cmd.Flags().BoolVarP(&flags.renderState, "render-state", "s", false, "parse the configuration, render the state document, and exit")
	cmd.Flags().BoolVarP(&flags.wipe, "zap", "z", false, "wipe the queue workspace before starting")
	cmd.Flags().StringVarP(&flags.queuePath, "queue", "q", config.DefaultQueueDir(), "queue directory root")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigDir(), "configuration file or directory")
	cmd.Flags().StringVarP(&flags.runPath, "run", "r", config.DefaultRunDir(), "run directory (pid and status files)")
	cmd.Flags().BoolVarP(&flags.showVersion, "version", "v", false, "print the version and exit")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "text", "console log format (text or json)")

	// The queue, config and run paths are also settable through the
	// environment (LMAPD_QUEUE, LMAPD_CONFIG, LMAPD_RUN), resolved at
	// startup by applyEnvOverrides; the other flags are not read from it.
	viper.SetEnvPrefix("LMAPD")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, flags *daemonFlags) error {
	if flags.showVersion {
		fmt.Printf("%s %s\n", build.AppName, build.Version)
		return nil
	}

	config.LoadDotEnv(flags.configPath)
	applyEnvOverrides(flags)

	logOpts := []logger.Option{logger.WithFormat(flags.logFormat)}
	if flags.debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	if flags.runPath != "" && !flags.renderOnly && !flags.renderState {
		logOpts = append(logOpts,
			logger.WithRotatedFile(filepath.Join(flags.runPath, "lmapd.log"), 50, 5, 30))
	}
	log := logger.New(logOpts...)
	ctx = logger.WithContext(ctx, log)

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	if flags.renderOnly {
		out, err := config.RenderXML(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	}
	if flags.renderState {
		out, err := config.RenderStateXML(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	}

	if flags.foreground {
		return detach()
	}

	if err := os.MkdirAll(flags.runPath, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := os.MkdirAll(flags.queuePath, 0o700); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	pidPath := filepath.Join(flags.runPath, "pid")
	if pid, running := pidfile.ReadRunning(pidPath); running {
		return fmt.Errorf("another instance is already running (pid %d)", pid)
	}
	if err := pidfile.Write(pidPath, os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = pidfile.Remove(pidPath) }()

	ws := workspace.New(flags.queuePath)
	if flags.wipe {
		if err := ws.CleanAll(cfg); err != nil {
			logger.Warn(ctx, "workspace wipe failed", "err", err)
		}
	}
	if err := ws.Init(cfg); err != nil {
		return err
	}

	logger.Info(ctx, "starting", "version", build.Version,
		"config", flags.configPath, "queue", flags.queuePath, "run", flags.runPath)

	for {
		restart := runOnce(ctx, cfg, ws, flags.runPath)
		if !restart {
			logger.Info(ctx, "stopped")
			return nil
		}

		// The outer shell pauses briefly so in-flight children have a
		// moment to exit before the reloaded configuration takes over.
		time.Sleep(time.Second)

		fresh, err := loadConfig(flags.configPath)
		if err != nil {
			logger.Error(ctx, "reload failed, keeping previous configuration", "err", err)
		} else {
			cfg = fresh
		}
		if err := ws.Init(cfg); err != nil {
			logger.Warn(ctx, "workspace re-init after reload failed", "err", err)
		}
		logger.Info(ctx, "restarted")
	}
}

// runOnce drives one Scheduler lifetime: signal wiring up, event loop
// until stop or restart, signal wiring down.
func runOnce(ctx context.Context, cfg *config.Configuration, ws *workspace.Manager, runDir string) bool {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, ws, runDir)
	frontend := sigfrontend.New(sched)
	frontend.Start(loopCtx)

	return sched.Run(loopCtx)
}

// loadConfig loads, validates, and finalises one configuration tree. A
// validation failure discards the whole tree; no partial state
// survives.
func loadConfig(path string) (*config.Configuration, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	populateCapability(cfg)
	return cfg, nil
}

// populateCapability fills the daemon-owned Capability fields: the
// software version, and (when the configuration names no explicit
// allow-list) the programs of every configured Task.
func populateCapability(cfg *config.Configuration) {
	if cfg.Capability.Version == "" {
		cfg.Capability.Version = build.Version
	}
	if len(cfg.Capability.Tasks) == 0 {
		seen := make(map[string]bool)
		for _, t := range cfg.Tasks {
			if t.Program != "" && !seen[t.Program] {
				seen[t.Program] = true
				cfg.Capability.Tasks = append(cfg.Capability.Tasks, t.Program)
			}
		}
	}
}

// applyEnvOverrides lets LMAPD_* environment variables stand in for
// unset path flags, so a .env beside the configuration can relocate
// the queue and run directories.
func applyEnvOverrides(flags *daemonFlags) {
	if v := viper.GetString("queue"); v != "" {
		flags.queuePath = v
	}
	if v := viper.GetString("config"); v != "" {
		flags.configPath = v
	}
	if v := viper.GetString("run"); v != "" {
		flags.runPath = v
	}
}

// detach re-executes the daemon without -f as a detached child and
// exits the parent, the classic double-start daemonisation a Go
// process can't do via fork alone.
func detach() error {
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "-f" || a == "--daemonize" {
			continue
		}
		args = append(args, a)
	}
	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	fmt.Printf("%d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}
