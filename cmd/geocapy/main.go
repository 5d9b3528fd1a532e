// geocapy manages a versioned geospatial feature repository.
//
// Every command reads its repository settings from the YAML file given by
// --config or the GEOCAPY_CONFIG environment variable. Without a config file
// an in-memory repository is used, which is only useful for trying commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nasdf/geocapy/config"
	"github.com/nasdf/geocapy/core"

	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	out        io.Writer
	configPath string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{
		out:        out,
		configPath: os.Getenv("GEOCAPY_CONFIG"),
	}
	return a.root().execute(ctx, out, "", args)
}

// configFlag registers the --config flag on a command flag set.
func (a *app) configFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&a.configPath, "config", "c", a.configPath, "path to the YAML config file")
}

func (a *app) config() (*config.Config, error) {
	if a.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(a.configPath)
}

// open opens the configured repository and calls fn with it.
func (a *app) open(ctx context.Context, fn func(repo *core.Repository) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	repo, release, err := cfg.Open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(repo)
}

func (a *app) root() *command {
	return &command{
		name:    "geocapy",
		summary: "Versioned geospatial feature repository.",
		subcommands: []*command{
			a.initCommand(),
			a.schemaCommand(),
			a.importCommand(),
			a.countCommand(),
			a.boundsCommand(),
			a.logCommand(),
			a.exportCommand(),
		},
	}
}
