package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/z407-tool/internal/commands"
	"github.com/vitaminmoo/z407-tool/internal/config"
	"github.com/vitaminmoo/z407-tool/internal/menu"
	"github.com/vitaminmoo/z407-tool/internal/protocol"
	"github.com/vitaminmoo/z407-tool/internal/session"
	"github.com/vitaminmoo/z407-tool/internal/tui"
)

// ConfigPath is the JSON file read for defaults when --config is not given.
const ConfigPath = "~/.config/z407/config.json"

// CLI is the root command structure for z407.
type CLI struct {
	Verbose     bool            `short:"v" env:"Z407_VERBOSE" help:"Enable verbose debug output"`
	LogLevel    string          `name:"log-level" env:"Z407_LOG_LEVEL" help:"Log level (debug, info, warn, error)"`
	Name        string          `default:"Z407" env:"Z407_NAME" help:"Prefer speakers whose advertised name contains this"`
	ScanTimeout time.Duration   `name:"scan-timeout" default:"10s" env:"Z407_SCAN_TIMEOUT" help:"How long to scan for the speakers"`
	Config      kong.ConfigFlag `help:"Load flag defaults from a JSON file"`

	// Default command - numbered menu
	Menu MenuCmd `cmd:"" default:"withargs" help:"Interactive numbered menu (default)"`
	Tui  TuiCmd  `cmd:"" help:"Launch interactive TUI"`
	Scan ScanCmd `cmd:"" help:"List nearby speakers"`

	Input        InputCmd        `cmd:"" help:"Switch input source"`
	Volume       VolumeCmd       `cmd:"" help:"Change volume"`
	Bass         BassCmd         `cmd:"" help:"Change bass level"`
	Pair         PairCmd         `cmd:"" help:"Force Bluetooth pairing mode"`
	PlayPause    PlayPauseCmd    `cmd:"" name:"play-pause" help:"Toggle play/pause (mute)"`
	FactoryReset FactoryResetCmd `cmd:"" name:"factory-reset" help:"Reset the speakers to factory settings"`

	Debug DebugCmd `cmd:"" help:"Debug and development tools"`
}

// Options returns the kong options the binary parses with.
func Options() []kong.Option {
	return []kong.Option{
		kong.Name("z407"),
		kong.Description("Control Logitech Z407 speakers over Bluetooth LE."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, ConfigPath),
	}
}

// Settings converts the global flags.
func (c *CLI) Settings() config.Settings {
	return config.Settings{
		NameFilter:  c.Name,
		ScanTimeout: c.ScanTimeout,
		LogLevel:    c.LogLevel,
		Verbose:     c.Verbose,
	}
}

func (c *CLI) env() (commands.Env, error) {
	settings := c.Settings()
	if err := settings.Apply(); err != nil {
		return commands.Env{}, err
	}
	config.Debugf("Settings: name=%q scan-timeout=%s", settings.NameFilter, settings.ScanTimeout)
	return commands.DefaultEnv(settings), nil
}

// run executes flow with Ctrl-C wired to cancellation and reports its outcome.
func (c *CLI) run(flow func(context.Context, commands.Env) session.Result) error {
	env, err := c.env()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Report(env.Out, flow(ctx, env))
}

func (c *CLI) execute(selection string, steps int) error {
	cmd, err := protocol.Lookup(selection)
	if err != nil {
		return err
	}
	return c.run(func(ctx context.Context, env commands.Env) session.Result {
		return commands.Execute(ctx, env, cmd, steps)
	})
}

// --- Interactive Commands ---

type MenuCmd struct{}

func (c *MenuCmd) Run(globals *CLI) error {
	return globals.run(commands.Interactive)
}

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	env, err := globals.env()
	if err != nil {
		return err
	}
	return tui.Run(env)
}

type ScanCmd struct{}

func (c *ScanCmd) Run(globals *CLI) error {
	return globals.run(commands.ScanList)
}

// --- Speaker Commands ---

type InputCmd struct {
	Source string `arg:"" enum:"bt,aux,usb" help:"Input source (bt, aux, usb)"`
}

// Selection maps the source to its menu key.
func (c *InputCmd) Selection() string {
	switch c.Source {
	case "aux":
		return "2"
	case "usb":
		return "3"
	default:
		return "1"
	}
}

func (c *InputCmd) Run(globals *CLI) error {
	return globals.execute(c.Selection(), 1)
}

type VolumeCmd struct {
	Direction string `arg:"" enum:"up,down" help:"up or down"`
	Steps     int    `arg:"" optional:"" help:"Number of steps (default 5)"`
}

func (c *VolumeCmd) Selection() string {
	if c.Direction == "down" {
		return "6"
	}
	return "5"
}

func (c *VolumeCmd) Run(globals *CLI) error {
	return globals.execute(c.Selection(), c.Steps)
}

type BassCmd struct {
	Direction string `arg:"" enum:"up,down" help:"up or down"`
	Steps     int    `arg:"" optional:"" help:"Number of steps (default 1)"`
}

func (c *BassCmd) Selection() string {
	if c.Direction == "down" {
		return "8"
	}
	return "7"
}

func (c *BassCmd) Run(globals *CLI) error {
	return globals.execute(c.Selection(), c.Steps)
}

type PairCmd struct{}

func (c *PairCmd) Run(globals *CLI) error {
	return globals.execute("4", 1)
}

type PlayPauseCmd struct{}

func (c *PlayPauseCmd) Run(globals *CLI) error {
	return globals.execute("9", 1)
}

type FactoryResetCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation"`
}

func (c *FactoryResetCmd) Run(globals *CLI) error {
	if !c.Yes {
		p := menu.New(os.Stdin, os.Stdout)
		if !p.Confirm("This erases all pairings and settings. Type 'yes' to continue: ") {
			fmt.Println("Aborted.")
			return nil
		}
	}
	return globals.execute("0", 1)
}

// --- Debug Commands ---

type DebugCmd struct {
	Explore DebugExploreCmd `cmd:"" help:"List all BLE services and characteristics"`
	Send    DebugSendCmd    `cmd:"" help:"Send one raw command code after the handshake"`
}

type DebugExploreCmd struct{}

func (c *DebugExploreCmd) Run(globals *CLI) error {
	return globals.run(commands.Explore)
}

type DebugSendCmd struct {
	Code string `arg:"" help:"Command code as 4 hex digits, e.g. 8101"`
}

func (c *DebugSendCmd) Run(globals *CLI) error {
	return globals.run(func(ctx context.Context, env commands.Env) session.Result {
		return commands.SendRaw(ctx, env, c.Code)
	})
}
