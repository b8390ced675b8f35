// Command airlimb-tui is a live contraction dashboard: one progress bar per
// muscle, refreshed from the shared observation buffer. It connects through
// the same config file as the airlimb CLI and looses all muscles on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pneumalab/airlimb/hardware"
	"github.com/pneumalab/airlimb/internal/config"
	"github.com/pneumalab/airlimb/limb"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#06B6D4")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Width(18).
			Foreground(lipgloss.Color("#9CA3AF"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			MarginTop(1)
)

func main() {
	configPath := flag.String("config", "airlimb.toml", "path to config file")
	refresh := flag.Duration("refresh", 50*time.Millisecond, "dashboard refresh interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	var profile *config.Profile
	if cfg.ProfilePath != "" {
		profile, err = config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading profile: %v\n", err)
			os.Exit(1)
		}
	}

	// Stdout is owned by the TUI; logs go to a file.
	logFile, err := os.OpenFile("airlimb-tui.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close() //nolint:errcheck

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	var dialer hardware.Dialer
	if cfg.Transport == "ws" {
		dialer = &hardware.WSDialer{URL: cfg.WS.URL, Logger: logger}
	} else {
		dialer = &hardware.MQTTDialer{
			Broker:   cfg.MQTT.Broker,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Logger:   logger,
		}
	}

	env := limb.New(dialer, limb.Options{
		Hostname:     cfg.Hostname,
		CycleTimeout: cfg.CycleTimeout(),
		LoosePeriod:  cfg.LoosePeriod(),
		Logger:       logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := env.Connect(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "error connecting: %v\n", err)
		os.Exit(1)
	}
	cancel()

	m := newModel(env, profile, cfg.Hostname, *refresh)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		env.ForceClose()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if fm, ok := final.(*model); ok && fm.err != nil {
		// The fault already force-closed the workers; nothing to drain.
		fmt.Fprintf(os.Stderr, "worker fault: %v\n", fm.err)
		os.Exit(1)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := env.Close(closeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error closing: %v\n", err)
		os.Exit(1)
	}
}

type tickMsg time.Time

type model struct {
	env     *limb.Env
	profile *config.Profile
	host    string
	refresh time.Duration

	bars []progress.Model
	obs  []float64
	err  error
}

func newModel(env *limb.Env, profile *config.Profile, host string, refresh time.Duration) *model {
	bars := make([]progress.Model, env.NumMuscles())
	for i := range bars {
		bars[i] = progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	}
	return &model{
		env:     env,
		profile: profile,
		host:    host,
		refresh: refresh,
		bars:    bars,
		obs:     make([]float64, env.NumMuscles()),
	}
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Init() tea.Cmd {
	return m.tick()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		obs, err := m.env.GetObs()
		if err != nil {
			// A worker fault already tore the connection down; show the
			// fault and stop polling.
			m.err = err
			return m, tea.Quit
		}
		m.obs = obs
		return m, m.tick()
	}
	return m, nil
}

func (m *model) View() string {
	s := titleStyle.Render(fmt.Sprintf("airlimb / %s (%d muscles)", m.host, len(m.obs)))
	s += "\n"

	for i, v := range m.obs {
		scale := m.profile.MaxPressure(i)
		ratio := v / scale
		if ratio > 1 {
			ratio = 1
		}
		s += fmt.Sprintf("%s %s %s\n",
			labelStyle.Render(m.profile.MuscleName(i)),
			m.bars[i].ViewAs(ratio),
			valueStyle.Render(fmt.Sprintf("%6.4f", v)),
		)
	}

	if m.err != nil {
		s += errStyle.Render(fmt.Sprintf("fault: %v", m.err)) + "\n"
	}
	s += helpStyle.Render("q to quit (looses all muscles)")
	return s
}
