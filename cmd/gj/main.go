package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/osmauxi/gjRepository/pkg/config"
)

var CLI struct {
	Debug bool `help:"Whether to enable debug logging."`

	Serve struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files for the server." type:"file"`
		Bot     string   `help:"Host a local wandering bot that asks for this mask (dear, panda, monkey or none)." default:""`
	} `cmd:"" help:"Host a session."`

	Join struct {
		Address string   `arg:"" help:"ws://host:port/ws/, enet://host:port or redis://host:port."`
		Configs []string `name:"config" help:"Configuration files; they must agree with the server's." type:"file"`
		Mask    string   `help:"The mask the bot asks for." default:"dear"`
		Seed    int      `help:"Seed for the bot's wandering." default:"1"`
	} `cmd:"" help:"Join a session with a wandering bot."`

	Simulate struct {
		Configs  []string `arg:"" optional:"" name:"configs" help:"Configuration files for the session." type:"file"`
		Bots     int      `help:"Number of bots." default:"3"`
		Seconds  float64  `help:"Simulated time." default:"10"`
		DropRate float64  `help:"Share of unreliable envelopes to drop; overrides the configuration." default:"-1"`
		Journal  string   `help:"Journal corrections, activations and deaths to this sqlite file."`
	} `cmd:"" help:"Run a session with bots in one process, as fast as possible."`

	Config struct {
		Configs   []string `arg:"" optional:"" name:"configs" help:"Configuration files to merge." type:"file"`
		Effective bool     `help:"Print the configuration after merging the given files instead of the defaults."`
	} `cmd:"" help:"Write the default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) == 1 {
		if err := serveCommand([]string{}, ""); err != nil {
			writeError(err)
		}
		return
	}

	ctx := kong.Parse(&CLI,
		kong.Name("gj"),
		kong.Description("a networked character movement session"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	var err error
	switch ctx.Command() {
	case "serve", "serve <configs>":
		err = serveCommand(CLI.Serve.Configs, CLI.Serve.Bot)
	case "join <address>":
		err = joinCommand()
	case "simulate", "simulate <configs>":
		err = simulateCommand()
	case "config", "config <configs>":
		err = configCommand()
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}

	if err != nil {
		writeError(err)
	}
}

func configCommand() error {
	if !CLI.Config.Effective {
		os.Stdout.Write(config.DEFAULT)
		return nil
	}

	effective, err := config.Effective(CLI.Config.Configs)
	if err != nil {
		return err
	}
	os.Stdout.Write(effective)
	return nil
}
