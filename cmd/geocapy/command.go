package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// command is a CLI command or a group of subcommands.
type command struct {
	name    string
	usage   string
	summary string
	// flags registers the flags of the command.
	flags func(fs *pflag.FlagSet)
	// run executes the command with the positional args left after flag parsing.
	run         func(ctx context.Context, args []string) error
	subcommands []*command
}

// execute parses args and dispatches to the matching subcommand or run function.
func (c *command) execute(ctx context.Context, out io.Writer, path string, args []string) error {
	path = strings.TrimSpace(path + " " + c.name)
	if len(c.subcommands) > 0 {
		if len(args) == 0 || isHelp(args[0]) || strings.HasPrefix(args[0], "-") {
			c.printHelp(out, path)
			return nil
		}
		for _, sub := range c.subcommands {
			if sub.name == args[0] {
				return sub.execute(ctx, out, path, args[1:])
			}
		}
		return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", args[0], path)
	}

	fs := pflag.NewFlagSet(path, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if c.flags != nil {
		c.flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			c.printHelp(out, path)
			fmt.Fprint(out, fs.FlagUsages())
			return nil
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return c.run(ctx, fs.Args())
}

func (c *command) printHelp(out io.Writer, path string) {
	if c.usage != "" {
		fmt.Fprintf(out, "Usage: %s %s\n", path, c.usage)
	} else {
		fmt.Fprintf(out, "Usage: %s <command>\n", path)
	}
	if c.summary != "" {
		fmt.Fprintf(out, "\n%s\n", c.summary)
	}
	if len(c.subcommands) == 0 {
		return
	}
	fmt.Fprint(out, "\nCommands:\n")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, sub := range c.subcommands {
		fmt.Fprintf(w, "  %s\t%s\n", sub.name, sub.summary)
	}
	w.Flush()
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// exactArgs returns an error unless exactly n positional arguments are given.
func exactArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s): %s", n, usage)
	}
	return nil
}
