package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vzahanych/xmlstore/pkg/config"
	"github.com/vzahanych/xmlstore/pkg/logger"
	"github.com/vzahanych/xmlstore/pkg/otel"
	"github.com/vzahanych/xmlstore/pkg/store"
)

// app holds what every command needs once flags are parsed.
type app struct {
	configFile string
	logLevel   string

	settings  *config.Settings
	roots     *store.Roots
	log       *logger.Logger
	telemetry *otel.Client
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "xmlstore",
		Short:         "Inspect the documents of the install and user-data roots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "configuration file (default: xmlstore.yaml in the working directory if present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newRootsCommand(a),
		newPathCommand(a),
		newCheckCommand(a),
		newDeleteCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	opts := config.Options{Paths: []string{"."}}
	if a.configFile != "" {
		opts.ConfigFile = a.configFile
		opts.Required = true
	}
	settings, file, err := config.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	settings.Logger = loggerConfig(settings.Logger, a.logLevel)
	a.settings = settings
	a.roots = store.NewRoots(&settings.Store)

	if settings.Logger.EnableFile && !filepath.IsAbs(settings.Logger.Filename) {
		dir, err := a.roots.UserDataDir()
		if err != nil {
			return err
		}
		settings.Logger.Filename = filepath.Join(dir, settings.Logger.Filename)
	}
	if a.log, err = logger.New(&settings.Logger); err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if file != "" {
		a.log.Debug("configuration loaded", zap.String("path", file))
	}

	if a.telemetry, err = otel.New(ctx, &settings.Telemetry); err != nil {
		return errors.Join(fmt.Errorf("initialize telemetry: %w", err), a.log.Close())
	}
	return nil
}

// loggerConfig applies the --log-level flag. Debug logging also turns on
// the development settings.
func loggerConfig(cfg logger.Config, level string) logger.Config {
	if level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if cfg.Level == logger.DebugLevel {
		dev := logger.DevelopmentConfig()
		cfg.EnableCaller = dev.EnableCaller
		cfg.Development = dev.Development
	}
	return cfg
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}

// storeOptions wires the logger and telemetry providers into a loader.
func (a *app) storeOptions() []store.Option {
	return []store.Option{
		store.WithLogger(a.log.WithComponent("store").Logger),
		store.WithMeterProvider(a.telemetry.MeterProvider()),
		store.WithTracerProvider(a.telemetry.TracerProvider()),
	}
}

func rootFlag(user bool) store.Root {
	if user {
		return store.UserDataRoot
	}
	return store.InstallRoot
}

// document accepts any well-formed root element.
type document struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
}

// element keeps its content as raw XML, so nothing below a child of the
// root is treated as unknown.
type element struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

func newRootsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "Print the install and user-data directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, root := range []store.Root{store.InstallRoot, store.UserDataRoot} {
				dir, err := a.roots.Dir(root)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", root, dir)
			}
			return nil
		},
	}
}

func newPathCommand(a *app) *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "path <file>",
		Short: "Print the location a document resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.roots.Resolve(args[0], rootFlag(user))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "resolve against the user-data root")
	return cmd
}

func newCheckCommand(a *app) *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Verify that a document exists and is well-formed XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.roots.Dir(rootFlag(user))
			if err != nil {
				return err
			}
			// Loading through a required root reports every failure,
			// including a missing user document.
			strict := store.NewRoots(&store.Config{InstallDir: dir})
			var unknown []string
			opts := append(a.storeOptions(), store.WithUnknownHandler(func(_ string, _ store.Root, names []string) {
				unknown = names
			}))
			doc, err := store.NewLoader[document](strict, opts...).LoadRequired(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			status := "no unknown members"
			if len(unknown) > 0 {
				status = "unknown members: " + strings.Join(unknown, ", ")
			}
			a.log.Debug("document checked", zap.String("file", args[0]), zap.String("element", doc.XMLName.Local))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: <%s> with %d attributes and %d child elements, %s\n",
				args[0], doc.XMLName.Local, len(doc.Attrs), len(doc.Children), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "check a document of the user-data root")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "delete <file>",
		Short: "Delete a user document; deleting a missing document succeeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := store.UserDataRoot
			if install {
				root = store.InstallRoot
			}
			if err := store.NewLoader[document](a.roots, a.storeOptions()...).Delete(args[0], root); err != nil {
				return err
			}
			a.log.Info("document deleted", zap.String("file", args[0]), zap.Stringer("root", root))
			return nil
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "delete from the install root instead")
	return cmd
}
