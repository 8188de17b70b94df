// Command ajs is the runtime's entry point: build, launch, and project
// module-management subcommands dispatched through a flag-based command
// table in the teacher's own style (main.go's command interface), not a
// third-party CLI framework. This package is intentionally thin — it only
// wires flags to the tested packages underneath (config, modmanager,
// buildartifact, shutdown); none of the actual logic lives here.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
)

var (
	verbose   = flag.Bool("v", false, "enable verbose logging")
	stdLogger = log.New(os.Stderr, "ajs: ", 0)
)

type command interface {
	Name() string           // "build"
	Args() string           // "[--env E]"
	ShortHelp() string      // "Resolve config and freeze a build artifact"
	LongHelp() string       // full description shown by `ajs <cmd> -h`
	Register(*flag.FlagSet) // command-specific flags
	Run([]string) error
}

func main() {
	commands := []command{
		&buildCommand{},
		&launchCommand{},
		&launchFromBuildCommand{},
		&projectCommand{},
	}

	usage := func() {
		fmt.Fprintln(os.Stderr, "Usage: ajs <command>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr)
		w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		for _, c := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", c.Name(), c.ShortHelp())
		}
		w.Flush()
		fmt.Fprintln(os.Stderr)
	}

	if len(os.Args) <= 1 || strings.ToLower(os.Args[1]) == "-h" || strings.ToLower(os.Args[1]) == "help" {
		usage()
		os.Exit(1)
	}

	for _, c := range commands {
		if c.Name() != os.Args[1] {
			continue
		}
		fs := flag.NewFlagSet(c.Name(), flag.ExitOnError)
		fs.BoolVar(verbose, "v", false, "enable verbose logging")
		c.Register(fs)
		resetUsage(fs, c.Name(), c.Args(), c.LongHelp())

		if err := fs.Parse(os.Args[2:]); err != nil {
			fs.Usage()
			os.Exit(1)
		}
		if err := c.Run(fs.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "ajs %s: %v\n", c.Name(), err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "%s: no such command\n", os.Args[1])
	usage()
	os.Exit(1)
}

func resetUsage(fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ajs %s %s\n", name, args)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, strings.TrimSpace(longHelp))
		fmt.Fprintln(os.Stderr)
		if hasFlags {
			fmt.Fprintln(os.Stderr, "Flags:")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, flagBlock.String())
		}
	}
}

func logf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ajs: "+format+"\n", args...)
}

func vlogf(format string, args ...interface{}) {
	if !*verbose {
		return
	}
	logf(format, args...)
}

func projectFolderFromWD() (string, error) {
	return os.Getwd()
}
