package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/hakeris1010/ODMRP-Sim/console"
	"github.com/hakeris1010/ODMRP-Sim/network"
	"github.com/hakeris1010/ODMRP-Sim/scenario"
	"github.com/hakeris1010/ODMRP-Sim/trace"
)

// stdio adapts separate stdin/stdout streams to the single
// io.ReadWriter golang.org/x/term.NewTerminal expects.
type stdio struct {
	io.Reader
	io.Writer
}

var (
	topologyPath string
	logPath      string
	verbose      bool
)

func main() {
	flag.StringVar(&topologyPath, "topology", "", "path to a scenario YAML file to load at startup")
	flag.StringVar(&logPath, "log", "", "path to an additional plain-text event log")
	flag.BoolVar(&verbose, "v", false, "enable debug-level event tracing")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger, closeLog, err := trace.New(os.Stderr, trace.Options{Level: level, FilePath: logPath})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	sched := network.NewScheduler(network.DefaultConfig(), nil)
	sched.SetLogger(logger)

	if topologyPath != "" {
		topo, err := scenario.Load(topologyPath)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
		if err := topo.Apply(sched); err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
	}

	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		defer cancel()
		return runConsole(sched)
	})

	if err := g.Wait(); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func runConsole(sched *network.Scheduler) error {
	c := console.New(sched, os.Stdout)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return console.RunScanner(c, os.Stdin)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return console.RunScanner(c, os.Stdin)
	}
	defer term.Restore(fd, oldState)

	return console.Run(c, stdio{Reader: os.Stdin, Writer: os.Stdout})
}
