package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/cli"
	"github.com/linuxmatters/vocalrange/internal/history"
	"github.com/linuxmatters/vocalrange/internal/logging"
	"github.com/linuxmatters/vocalrange/internal/mains"
	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/linuxmatters/vocalrange/internal/practice"
	"github.com/linuxmatters/vocalrange/internal/ui"
	"github.com/sirupsen/logrus"
)

var (
	version = "0.0.1"
)

const (
	debugLogName   = "vocalrange-debug.log"
	recentSessions = 20
)

// CLI defines the command-line interface
type CLI struct {
	Version   bool            `short:"v" help:"Show version information"`
	Config    kong.ConfigFlag `short:"c" help:"Path to JSON config file (optional)"`
	Mode      string          `short:"m" default:"${mode}" help:"Exercise to practise"`
	Modes     string          `type:"existingfile" help:"JSON file of custom exercises"`
	ListModes bool            `help:"List the available exercises and exit"`

	Tolerance float64       `default:"${tolerance}" help:"Allowed deviation from a note in cents"`
	DeltaDB   float64       `name:"delta-db" default:"${delta_db}" help:"Level above the room noise a frame needs, in dB"`
	Clarity   float64       `default:"${clarity}" help:"Pitch clarity a frame needs (0-1)"`
	Beat      time.Duration `default:"${beat}" help:"Length of one beat"`

	Sampled        bool   `help:"Play guide tones with the sampled instrument"`
	Instrument     string `type:"existingfile" help:"WAV sample for the sampled instrument"`
	InstrumentRoot string `default:"C4" help:"Note the instrument sample was recorded at"`
	AutoAdvance    bool   `default:"true" negatable:"" help:"Start the next cycle automatically after a pass"`
	MainsHz        int    `name:"mains-hz" help:"Mains frequency for hum rejection, 0 = detect from timezone"`

	Logs        bool   `help:"Save a detailed practice report"`
	Save        string `type:"path" help:"Append the result as a JSON line to this file"`
	History     string `type:"path" help:"SQLite file keeping every session for personal bests"`
	ShowHistory bool   `help:"Show recent sessions from --history and exit"`
	Debug       bool   `help:"Write a debug log to vocalrange-debug.log"`
}

func main() {
	defaults := practice.DefaultConfig()

	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("vocalrange"),
		kong.Description("Scale practice and vocal range finder"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "~/.config/vocalrange/config.json"),
		kong.Vars{
			"version":   version,
			"mode":      defaults.Mode.ID,
			"tolerance": strconv.FormatFloat(defaults.ToleranceCents, 'f', -1, 64),
			"delta_db":  strconv.FormatFloat(defaults.DeltaDB, 'f', -1, 64),
			"clarity":   strconv.FormatFloat(defaults.ThetaClarity, 'f', -1, 64),
			"beat":      defaults.BeatDuration.String(),
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true}, practice.DefaultModes())),
	)

	// Handle version flag
	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	modes := practice.DefaultModes()
	if cliArgs.Modes != "" {
		custom, err := practice.LoadModes(cliArgs.Modes)
		if err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
		modes = append(custom, modes...)
	}

	if cliArgs.ListModes {
		cli.PrintModes(os.Stdout, modes, cliArgs.Mode)
		os.Exit(0)
	}

	if cliArgs.ShowHistory {
		if err := showHistory(cliArgs.History); err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
		os.Exit(0)
	}

	mode, err := practice.FindMode(modes, cliArgs.Mode)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}

	log, closeLog := newLogger(cliArgs.Debug)
	defer closeLog()

	cfg := buildConfig(cliArgs, mode, defaults)
	cfg.MainsHz = float64(resolveMains(cliArgs.MainsHz, log))

	if err := run(cliArgs, cfg, log); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// buildConfig applies the command-line overrides to the defaults
func buildConfig(c *CLI, mode practice.ScaleMode, cfg practice.Config) practice.Config {
	cfg.Mode = mode
	cfg.ToleranceCents = c.Tolerance
	cfg.DeltaDB = c.DeltaDB
	cfg.ThetaClarity = c.Clarity
	if c.Beat > 0 {
		cfg.BeatDuration = c.Beat
	}
	cfg.UseSampledInstrument = c.Sampled && c.Instrument != ""
	cfg.AutoAdvance = c.AutoAdvance
	return cfg
}

// newLogger writes debug logs to a file when enabled and discards them otherwise
func newLogger(debug bool) (*logrus.Logger, func()) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	if !debug {
		return log, func() {}
	}

	f, err := os.Create(debugLogName)
	if err != nil {
		cli.PrintError(fmt.Sprintf("failed to create debug log: %v", err))
		return log, func() {}
	}
	log.SetOutput(f)
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return log, func() { f.Close() }
}

// resolveMains returns the configured mains frequency or detects it from the timezone
func resolveMains(hz int, log logrus.FieldLogger) int {
	if hz > 0 {
		return hz
	}
	loc := mains.Detect()
	log.WithFields(logrus.Fields{
		"timezone": loc.Timezone,
		"country":  loc.Country,
		"mains_hz": loc.Hz,
	}).Info("mains frequency detected")
	return loc.Hz
}

// showHistory prints the most recent sessions
func showHistory(path string) error {
	if path == "" {
		return errors.New("--show-history needs --history")
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Recent(context.Background(), recentSessions)
	if err != nil {
		return err
	}
	logging.DisplayHistory(os.Stdout, sessions)
	return nil
}

func run(c *CLI, cfg practice.Config, log *logrus.Logger) error {
	sessionID := uuid.NewString()
	log.WithField("session_id", sessionID).Info("practice session starting")

	player, err := audio.NewBeepPlayer()
	if err != nil {
		return err
	}
	defer player.Close()

	if c.Instrument != "" {
		if err := player.LoadInstrument(c.Instrument, c.InstrumentRoot); err != nil {
			return err
		}
	}

	session := audio.NewSession(audio.SessionOptions{
		Microphone: audio.NewMalgoMicrophone(log),
		Player:     player,
		Detector:   pitch.NewMPM(),
		Ticks:      audio.NewFrameTicker(),
		Clock:      audio.SystemClock{},
		Logger:     log,
	})

	machine, err := practice.NewMachine(session, cfg, log)
	if err != nil {
		return err
	}
	defer machine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the TUI
	startTime := time.Now()
	p := tea.NewProgram(ui.NewModel(ctx, machine), tea.WithAltScreen())
	machine.SetListener(ui.Listener(p))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	cancel()
	machine.Close()
	endTime := time.Now()

	summary := machine.Summary()
	log.WithFields(logrus.Fields{
		"cycles":     len(summary.Cycles),
		"highest_hz": summary.HighestHz,
		"lowest_hz":  summary.LowestHz,
	}).Info("practice finished")

	fmt.Println()
	logging.DisplaySummary(os.Stdout, summary, cfg)

	// Generate practice report if --logs flag is set
	if c.Logs {
		reportPath := fmt.Sprintf("vocalrange-%s.log", startTime.Format("20060102-150405"))
		err := logging.GenerateReport(logging.ReportData{
			Path:      reportPath,
			SessionID: sessionID,
			StartTime: startTime,
			EndTime:   endTime,
			MainsHz:   cfg.MainsHz,
			Summary:   summary,
			Config:    cfg,
		})
		if err != nil {
			log.WithError(err).Error("failed to write report")
			cli.PrintError(err.Error())
		} else {
			fmt.Printf("%s %s\n", cli.KeyStyle.Render("Report:"), cli.ValueStyle.Render(reportPath))
		}
	}

	if c.Save != "" && (summary.HighestHz > 0 || summary.LowestHz > 0) {
		if err := logging.AppendEventRecord(c.Save, logging.NewEventRecord(sessionID, summary, endTime)); err != nil {
			log.WithError(err).Error("failed to save result")
			cli.PrintError(err.Error())
		}
	}

	if c.History != "" {
		if err := recordHistory(c.History, history.FromSummary(sessionID, summary, endTime), summary); err != nil {
			log.WithError(err).Error("failed to update history")
			cli.PrintError(err.Error())
		}
	}
	return nil
}

// recordHistory stores the session and prints the personal best it is measured against
func recordHistory(path string, sess history.Session, summary practice.Summary) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if sess.Cycles > 0 {
		if err := store.Record(ctx, sess); err != nil {
			return err
		}
	}
	best, err := store.Best(ctx, sess.Mode)
	if err != nil {
		return err
	}
	logging.DisplayBest(os.Stdout, summary, best)
	return nil
}
