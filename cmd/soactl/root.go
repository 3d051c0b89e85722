package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/logging"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errNotCompliant is returned when a check or batch found violations.
var errNotCompliant = errors.New("not compliant")

type globalOptions struct {
	configFile          string
	rulesFiles          []string
	strict              bool
	lookup              string
	interpolatedDisplay bool
	logLevel            string
	logFormat           string
}

// cli carries the state shared by every subcommand once the root pre-run has finished.
type cli struct {
	opts   globalOptions
	out    io.Writer
	logger *zap.Logger
	engine *rules.Engine
	mode   soa.LookupMode
}

func newRootCmd(out io.Writer) *cobra.Command {
	app := &cli{out: out, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "soactl",
		Short:         "Validate SOA rule documents and check test values against them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if _, err := initConfiguration(cmd, app.opts.configFile); err != nil {
				return err
			}
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = app.logger.Sync()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&app.opts.configFile, "config", "", "configuration file (yaml, json or toml)")
	flags.StringSliceVarP(&app.opts.rulesFiles, "rules", "r", nil, "rules documents (.json, .yaml or .msgpack), merged in order")
	flags.BoolVar(&app.opts.strict, "strict", false, "reject documents that redefine a loaded device")
	flags.StringVar(&app.opts.lookup, "lookup", string(soa.LookupExact), "limit lookup for untabulated levels: exact, nearest or interpolate")
	flags.BoolVar(&app.opts.interpolatedDisplay, "interpolated-display", false, "report interpolated limits next to unknown ones")
	flags.StringVar(&app.opts.logLevel, "log-level", "warn", "log level")
	flags.StringVar(&app.opts.logFormat, "log-format", "console", "log format: console or json")

	root.AddCommand(
		newValidateCmd(app),
		newExportCmd(app),
		newLimitsCmd(app),
		newCheckCmd(app),
		newBatchCmd(app),
		newTemplateCmd(app),
	)
	return root
}

// setup builds the logger and loads the rules documents named by --rules.
func (c *cli) setup() error {
	logger, err := logging.New(c.opts.logLevel, c.opts.logFormat, "")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	c.logger = logger
	zap.ReplaceGlobals(logger)

	mode, err := soa.ParseLookupMode(c.opts.lookup)
	if err != nil {
		return err
	}
	c.mode = mode

	if len(c.opts.rulesFiles) == 0 {
		return errors.New("no rules document given, use --rules or SOA_RULES")
	}

	var engineOpts []rules.Option
	engineOpts = append(engineOpts, rules.WithLogger(logger.Named("rules")))
	if c.opts.strict {
		engineOpts = append(engineOpts, rules.WithStrict())
	}
	c.engine = rules.New(engineOpts...)
	for _, path := range c.opts.rulesFiles {
		if err := c.engine.LoadFile(path); err != nil {
			return err
		}
		c.logger.Debug("rules loaded", zap.String("path", path), zap.Int("devices", c.engine.Len()))
	}
	return nil
}

func (c *cli) checker() *compliance.Checker {
	opts := []compliance.Option{compliance.WithLookup(c.mode)}
	if c.opts.interpolatedDisplay {
		opts = append(opts, compliance.WithInterpolatedDisplay())
	}
	return compliance.NewChecker(c.engine, opts...)
}
