package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/creastat/sessionstore/events"
	"github.com/creastat/sessionstore/internal/config"
	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/internal/tracing"
	"github.com/creastat/sessionstore/session"
)

// app carries what the subcommands share once the config is loaded.
type app struct {
	cfgFile     string
	granularity string

	cfg      config.Config
	repo     *session.Repository
	broker   *events.Broker[string]
	tracer   *tracing.Provider
	printed  chan struct{}
	closeLog func()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close(context.WithoutCancel(ctx)))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and edit sessions in the remote cache",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: built-in defaults and SESSIONSTORE_* environment)")
	root.PersistentFlags().StringVarP(&a.granularity, "granularity", "g", "",
		"override the configured granularity (coarse or fine)")

	root.AddCommand(
		newCreateCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newUnsetCmd(a),
		newDeleteCmd(a),
		newSweepCmd(a),
		newInitConfigCmd(),
	)
	return root
}

// open loads the config, sets up logging and tracing, and dials the cache.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.granularity != "" {
		cfg.Granularity = a.granularity
	}
	a.cfg = cfg

	if cfg.Log.Enabled {
		level := log.ParseLevel(cfg.Log.Level)
		if cfg.Log.File != "" {
			a.closeLog, err = log.InitFile(cfg.Log.File, level)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
		} else {
			log.Init(cmd.ErrOrStderr(), level)
		}
	}

	a.tracer, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	if a.tracer.Enabled() {
		sc.Tracer = a.tracer.Tracer()
	}

	a.broker = events.NewBroker[string]()
	a.printed = make(chan struct{})
	go printEvents(a.broker.Subscribe(cmd.Context()), cmd.ErrOrStderr(), a.printed)

	a.repo, err = session.Dial(sc, a.broker)
	if err != nil {
		return err
	}
	return nil
}

func printEvents(sub <-chan events.Event[string], w io.Writer, done chan<- struct{}) {
	defer close(done)
	for ev := range sub {
		fmt.Fprintf(w, "%s %s\n", ev.Type, ev.Payload)
	}
}

func (a *app) close(ctx context.Context) error {
	var err error
	if a.repo != nil {
		err = a.repo.Close()
	}
	if a.broker != nil {
		a.broker.Close()
		<-a.printed
	}
	if a.tracer != nil {
		err = errors.Join(err, a.tracer.Shutdown(ctx))
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	return err
}
