package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"

	"yogafanctl"
	"yogafanctl/cmd/yogafanctl/monitor"
	"yogafanctl/thermal"
	"yogafanctl/winring"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
	yes   bool
)

const startupTaskName = "FanControlAutoRestore"

func main() {
	cmd := &cobra.Command{
		Use:     "yogafanctl",
		Short:   "EC mailbox fan control for the Lenovo Yoga Pro 9i",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
	}
	cmd.PersistentFlags().StringVarP(&cpath, "config", "c", "", "Configfile path")
	cmd.PersistentFlags().BoolVarP(&dummy, "dummy", "", false, "Use an in-memory EC instead of the driver")
	cmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "Skip the above-safe-maximum confirmation")

	cmd.AddCommand(readCommand())
	cmd.AddCommand(setCommand())
	cmd.AddCommand(autoCommand())
	cmd.AddCommand(holdCommand())
	cmd.AddCommand(monitor.Command(newController))
	cmd.AddCommand(uninstallCommand())
	cmd.AddCommand(startupTaskCommand())
	cmd.AddCommand(startupSafetyCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for yogafanctl",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configPath() string {
	if cpath != "" {
		return cpath
	}

	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		base, _ = os.UserHomeDir()
	}
	return filepath.Join(base, "Yoga Fan Control", "yogafanctl.yml")
}

func newController() (*yogafanctl.Controller, logger.Logger, error) {
	cfg, err := yogafanctl.Load(configPath())
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stderr, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true,
	})
	log := logger.WrapSlogHandler(h)

	var gateway func() yogafanctl.Gateway
	if dummy {
		d := yogafanctl.NewDummyGateway()
		gateway = func() yogafanctl.Gateway { return d }
	} else {
		if !winring.Elevated() {
			return nil, nil, fmt.Errorf("%w: run as Administrator", winring.ErrPermission)
		}
		gateway = func() yogafanctl.Gateway { return winring.NewSession(cfg.DriverPath) }
	}

	ctrl := yogafanctl.New(cfg, gateway)
	ctrl.SetLogger(log)
	ctrl.SetThermal(thermal.New())
	if !dummy {
		ctrl.SetTeardown(winring.RemoveServices)
	}

	return ctrl, log, nil
}

func parseSpeed(cfg yogafanctl.Config, arg string) (int, error) {
	if v, err := strconv.Atoi(arg); err == nil {
		if v < 0 || v > 100 {
			return 0, fmt.Errorf("%s: speed must be in range [0,100]", arg)
		}
		return v, nil
	}

	if v, ok := cfg.Presets[strings.ToLower(arg)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%s: not a percentage or a preset name", arg)
}

// parseTargets resolves one or two fan arguments; a single value drives both
// channels.
func parseTargets(cfg yogafanctl.Config, args []string) (f1, f2 int, err error) {
	f1, err = parseSpeed(cfg, args[0])
	if err != nil {
		return 0, 0, err
	}

	f2 = f1
	if len(args) == 2 {
		f2, err = parseSpeed(cfg, args[1])
		if err != nil {
			return 0, 0, err
		}
	}
	return f1, f2, nil
}

// confirmSafeMax asks once per process before targets above the configured
// safe maximum reach the EC. The controller only flags, it never blocks.
func confirmSafeMax(ctrl *yogafanctl.Controller, f1, f2 int) bool {
	if !ctrl.ExceedsSafeMax(f1, f2) || yes || ctrl.State().SafeConfirmed.Load() {
		return true
	}

	fmt.Printf("WARNING: setting fans above %d%% exceeds the EC's normal range.\n", ctrl.Config().SafeMax)
	fmt.Print("Continue? (y/N): ")

	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.ToLower(strings.TrimSpace(line)) != "y" {
		return false
	}

	ctrl.State().SafeConfirmed.Store(true)
	return true
}

func readCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read current fan speeds",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctrl, _, err := newController()
			if err != nil {
				return err
			}

			f1, f2, err := ctrl.ReadFans()
			if err != nil {
				return err
			}

			fmt.Printf("Fan 1: %d%%\n", f1)
			fmt.Printf("Fan 2: %d%%\n", f2)
			return nil
		},
	}
}

func setCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <fan1> [fan2]",
		Short: "Set fan speed(s) in percent (0-100) or by preset name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctrl, _, err := newController()
			if err != nil {
				return err
			}

			f1, f2, err := parseTargets(ctrl.Config(), args)
			if err != nil {
				return err
			}

			if !confirmSafeMax(ctrl, f1, f2) {
				fmt.Println("Aborted.")
				return nil
			}

			r, err := ctrl.SetFans(f1, f2)
			if err != nil {
				return err
			}

			fmt.Printf("Fan 1 -> %d%%: %s\n", r.Applied1, okOrFailed(r.Fan1))
			fmt.Printf("Fan 2 -> %d%%: %s\n", r.Applied2, okOrFailed(r.Fan2))
			if !r.Fan1 || !r.Fan2 {
				return errors.New("the EC rejected a fan target")
			}
			return nil
		},
	}
}

func autoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Restore automatic EC fan control",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctrl, _, err := newController()
			if err != nil {
				return err
			}

			if err := ctrl.RestoreAuto(); err != nil {
				return err
			}
			fmt.Println("Automatic fan control restored.")
			return nil
		},
	}
}

func holdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hold <fan1> [fan2]",
		Short: "Set and maintain fan speeds until interrupted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctrl, log, err := newController()
			if err != nil {
				return err
			}

			f1, f2, err := parseTargets(ctrl.Config(), args)
			if err != nil {
				return err
			}

			if !confirmSafeMax(ctrl, f1, f2) {
				fmt.Println("Aborted.")
				return nil
			}

			f1 = yogafanctl.ClampSpeed(f1)
			f2 = yogafanctl.ClampSpeed(f2)
			log.Infof("Holding fans at %d%%/%d%% every %s, Ctrl+C to stop", f1, f2, ctrl.Config().HoldInterval)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			ctrl.Hold(ctx, f1, f2)

			// Safety net: the EC stays pinned at the held targets otherwise,
			// tolerate this restore failing too.
			if err := ctrl.ForceRestoreAuto(); err == nil {
				log.Info("Restored automatic fan control")
			}
			return nil
		},
	}
}

func uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove leftover driver services and the cached driver file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := winring.Uninstall(); err != nil {
				return err
			}
			fmt.Println("Driver services and cached files removed.")
			return nil
		},
	}
}

// startupSafetyCommand restores automatic control silently at boot. It is run
// by the scheduled task before any stale held state can matter and always
// exits 0; there is nobody to report to at that point.
func startupSafetyCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "startup-safety",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			ctrl, _, err := newController()
			if err != nil {
				return
			}
			ctrl.ForceRestoreAuto()
			ctrl.ForceTeardown()
		},
	}
}

func startupTaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "startup-task",
		Short: "Manage the boot-time auto-restore scheduled task",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the scheduled task (runs 'startup-safety' at boot)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				return err
			}

			out, err := exec.Command("schtasks", "/create",
				"/tn", startupTaskName,
				"/tr", startupTaskAction(exe),
				"/sc", "onstart",
				"/ru", "SYSTEM",
				"/rl", "HIGHEST",
				"/f",
			).CombinedOutput()
			if err != nil {
				return fmt.Errorf("schtasks: %v: %s", err, out)
			}

			fmt.Printf("Scheduled task %s installed.\n", startupTaskName)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Remove the scheduled task",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := exec.Command("schtasks", "/delete", "/tn", startupTaskName, "/f").CombinedOutput()
			if err != nil {
				return fmt.Errorf("schtasks: %v: %s", err, out)
			}

			fmt.Printf("Scheduled task %s removed.\n", startupTaskName)
			return nil
		},
	})

	return cmd
}

// startupTaskAction builds the schtasks /tr command line. schtasks wants the
// executable path wrapped in plain double quotes, no escaping of backslashes.
func startupTaskAction(exe string) string {
	return "\"" + exe + "\" startup-safety"
}

func okOrFailed(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}
