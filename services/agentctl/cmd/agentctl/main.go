package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"agentdock/services/agentctl"
	"agentdock/services/assets"
	"agentdock/services/directory"
	"agentdock/services/wizard"
)

type env struct {
	API          string        `env:"AGENTCTL_API"`
	User         string        `env:"AGENTCTL_USER"`
	FetchTimeout time.Duration `env:"AGENTCTL_FETCH_TIMEOUT,default=15s"`
	Verbose      bool          `env:"AGENTCTL_VERBOSE"`
}

type globals struct {
	api     string
	user    string
	verbose bool
	env     env
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Command line for agentdock onboarding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if err := envconfig.Process(contextOf(cmd), &g.env); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if g.api == "" {
				g.api = g.env.API
			}
			if g.user == "" {
				g.user = g.env.User
			}
			g.verbose = g.verbose || g.env.Verbose
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.api, "api", "", "Base URL of the catalog API (env AGENTCTL_API)")
	cmd.PersistentFlags().StringVar(&g.user, "user", "", "User id sent with catalog requests (env AGENTCTL_USER)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log debug output to stderr")

	cmd.AddCommand(newAssetsCommand())
	cmd.AddCommand(newAgentsCommand(g))
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (g *globals) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if g.verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

func (g *globals) client() (*directory.Client, error) {
	if g.api == "" {
		return nil, errors.New("--api or AGENTCTL_API is required")
	}
	return directory.New(g.api, directory.WithUserID(g.user), directory.WithLogger(g.logger()))
}

type assetFlags struct {
	proxyPath   string
	storageBase string
	hosts       []string
	keyMode     string
}

func (f *assetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.proxyPath, "proxy-path", assets.DefaultProxyPath, "Path prefix for proxied storage URLs")
	cmd.Flags().StringVar(&f.storageBase, "storage-base-url", "", "Base URL used to expand path-like asset values")
	cmd.Flags().StringSliceVar(&f.hosts, "storage-host", nil, "Additional self-hosted storage host (repeatable)")
	cmd.Flags().StringVar(&f.keyMode, "key-mode", string(assets.KeyCanonical), "Dedup key mode: canonical or exact")
}

func (f *assetFlags) config() (assets.Config, error) {
	mode, err := assets.ParseKeyMode(f.keyMode)
	if err != nil {
		return assets.Config{}, err
	}
	return assets.Config{
		ProxyPath:      f.proxyPath,
		StorageBaseURL: f.storageBase,
		StorageHosts:   f.hosts,
		KeyMode:        mode,
	}, nil
}

func newAssetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Demo asset operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newAssetsClassifyCommand())
	return cmd
}

func newAssetsClassifyCommand() *cobra.Command {
	var (
		file     string
		previews string
		flags    assetFlags
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify and deduplicate demo assets from a YAML manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			manifest, err := agentctl.LoadAssetManifest(file)
			if err != nil {
				return err
			}
			_, err = agentctl.ClassifyAssets(agentctl.ClassifyConfig{
				Manifest: manifest,
				Previews: previews,
				Assets:   cfg,
				Stdout:   cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Asset manifest (assets + preview_urls)")
	cmd.Flags().StringVar(&previews, "previews", "", "Comma-separated preview URLs, overriding the manifest")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAgentsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Agent onboarding, editing and export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newAgentsOnboardCommand(g))
	cmd.AddCommand(newAgentsEditCommand(g))
	cmd.AddCommand(newAgentsExportCommand(g))
	cmd.AddCommand(newAgentsVerifyCommand())
	return cmd
}

func runWizard(cmd *cobra.Command, g *globals, agentID, file string) error {
	draft, err := agentctl.LoadDraft(file)
	if err != nil {
		return err
	}
	client, err := g.client()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, err = agentctl.Run(contextOf(cmd), agentctl.RunConfig{
		Services: wizard.Services{
			Capabilities: client,
			Deployments:  client,
			Vocabulary:   client,
			Agents:       client,
			Notifier:     agentctl.PrintNotifier{Out: out},
		},
		UserID:       g.user,
		AgentID:      agentID,
		Draft:        draft,
		FetchTimeout: g.env.FetchTimeout,
		Logger:       g.logger(),
		Stdout:       out,
	})
	return err
}

func newAgentsOnboardCommand(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create an agent from a draft file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, g, "", file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Draft YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAgentsEditCommand(g *globals) *cobra.Command {
	var (
		id   string
		file string
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply a draft patch to a stored agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, g, id, file)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Agent id")
	cmd.Flags().StringVar(&file, "file", "", "Draft patch YAML file")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAgentsExportCommand(g *globals) *cobra.Command {
	var (
		id     string
		output string
		flags  assetFlags
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored agent and its classified assets to a tar.zst archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			client, err := g.client()
			if err != nil {
				return err
			}
			signer, err := agentctl.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = agentctl.Export(contextOf(cmd), agentctl.ExportConfig{
				Agents:     client,
				AgentID:    id,
				Output:     output,
				Classifier: assets.New(cfg),
				Signer:     signer,
				Stdout:     cmd.OutOrStdout(),
			})
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Agent id")
	cmd.Flags().StringVar(&output, "output", "", "Destination archive (tar.zst)")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newAgentsVerifyCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an export archive against its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := agentctl.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = agentctl.Verify(contextOf(cmd), agentctl.VerifyConfig{
				Path:   file,
				Signer: signer,
				Stdout: cmd.OutOrStdout(),
			})
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the archive")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
