// Command airlimb is a control CLI for a pneumatic limb bridge.
//
// Usage:
//
//	airlimb init                      write a default airlimb.toml
//	airlimb obs [--watch 100ms]       print contraction readings
//	airlimb step 1,0,-1               issue one action vector
//	airlimb loose [--period 500ms]    de-actuate all muscles
//	airlimb reset [--period 500ms]    loose all, then print the settled state
//
// All subcommands accept --config (default "airlimb.toml").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pneumalab/airlimb/hardware"
	"github.com/pneumalab/airlimb/internal/config"
	"github.com/pneumalab/airlimb/limb"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "init", "obs", "step", "loose", "reset":
	default:
		usage()
		return 2
	}

	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	configPath := fs.String("config", "airlimb.toml", "path to config file")
	watch := fs.Duration("watch", 0, "obs: keep printing at this interval")
	period := fs.Duration("period", 0, "loose/reset: de-actuation duration")

	var vector string
	if sub == "step" && len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		vector, rest = rest[0], rest[1:]
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	if sub == "init" {
		cfg := config.Default()
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Printf("wrote %s\n", *configPath)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		cfg = config.Default()
	}

	// With a calibration profile configured, a mis-sized step vector can be
	// rejected before dialing the bridge at all.
	if sub == "step" && cfg.ProfilePath != "" && vector != "" {
		if err := checkVectorAgainstProfile(cfg.ProfilePath, vector); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := limb.New(dialerFor(cfg, logger), limb.Options{
		Hostname:     cfg.Hostname,
		CycleTimeout: cfg.CycleTimeout(),
		LoosePeriod:  cfg.LoosePeriod(),
		Logger:       logger,
	})

	if err := env.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer env.ForceClose()

	switch sub {
	case "obs":
		err = runObs(ctx, env, *watch)
	case "step":
		err = runStep(env, vector)
	case "loose":
		err = env.LooseAll(*period)
	case "reset":
		err = runReset(env, *period)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// The signal context may already be cancelled; shutdown still needs to
	// reach the bridge to stop pressure generation.
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := env.Close(closeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error closing: %v\n", err)
		return 1
	}
	return 0
}

func runObs(ctx context.Context, env *limb.Env, watch time.Duration) error {
	printObs := func() error {
		obs, err := env.GetObs()
		if err != nil {
			return err
		}
		fmt.Println(formatVector(obs))
		return nil
	}

	if watch <= 0 {
		return printObs()
	}

	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printObs(); err != nil {
				return err
			}
		}
	}
}

func runStep(env *limb.Env, vector string) error {
	if vector == "" {
		return fmt.Errorf("step needs an action vector, e.g. airlimb step 1,0,-1")
	}
	actions, err := parseVector(vector)
	if err != nil {
		return err
	}
	return env.Step(actions)
}

func runReset(env *limb.Env, period time.Duration) error {
	obs, err := env.Reset(nil, period)
	if err != nil {
		return err
	}
	fmt.Println(formatVector(obs))
	return nil
}

func checkVectorAgainstProfile(profilePath, vector string) error {
	prof, err := config.LoadProfile(profilePath)
	if err != nil {
		return err
	}
	actions, err := parseVector(vector)
	if err != nil {
		return err
	}
	if len(actions) != len(prof.Muscles) {
		return fmt.Errorf("profile %q defines %d muscles, got %d actions",
			prof.Name, len(prof.Muscles), len(actions))
	}
	return nil
}

func dialerFor(cfg *config.Config, logger *slog.Logger) hardware.Dialer {
	if cfg.Transport == "ws" {
		return &hardware.WSDialer{URL: cfg.WS.URL, Logger: logger}
	}
	return &hardware.MQTTDialer{
		Broker:   cfg.MQTT.Broker,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Logger:   logger,
	}
}

func parseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad action %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func formatVector(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return strings.Join(parts, " ")
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: airlimb <init|obs|step|loose|reset> [flags]")
}
