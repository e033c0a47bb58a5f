package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goatkit/moddata/internal/config"
	"github.com/goatkit/moddata/internal/framework"
	"github.com/goatkit/moddata/internal/saves"
)

type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "modsave",
		Short:         "Inspect and repair modded save files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFile(a.v, a.cfgFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml)")
	pf.String("save-dir", "", "directory holding the modded save files")
	pf.String("plugin-dir", "", "directory holding plugin manifests")
	pf.String("framework-version", "", "framework version used for the version gate")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("log-format", "", "log format: text or json")

	for key, flag := range map[string]string{
		config.KeySaveDir:          "save-dir",
		config.KeyPluginDir:        "plugin-dir",
		config.KeyFrameworkVersion: "framework-version",
		config.KeyDebug:            "debug",
		config.KeyLogFormat:        "log-format",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.inspectCmd(),
		a.getCmd(),
		a.setCmd(),
		a.verifyCmd(),
		a.resetCmd(),
		a.pluginsCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) config() (*config.Config, error) {
	return config.Resolve(a.v)
}

func (a *app) path(slotArg string) (*config.Config, saves.Slot, string, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, 0, "", err
	}
	slot, err := saves.ParseSlot(slotArg)
	if err != nil {
		return nil, 0, "", err
	}
	return cfg, slot, filepath.Join(cfg.SaveDir, slot.FileName()), nil
}

// framework starts a framework whose local scope is pinned to slot. Plugins
// come from the manifest directory only.
func (a *app) framework(ctx context.Context, cmd *cobra.Command, slot saves.Slot) (*framework.Framework, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	cfg.AutosaveSchedule = ""
	cfg.WatchPlugins = false

	opts := []framework.Option{framework.WithLogOutput(cmd.ErrOrStderr())}
	if slot != saves.SlotGlobal {
		opts = append(opts, framework.WithSlotSource(saves.FixedSlot(slot)))
	}
	f, err := framework.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := f.Start(ctx); err != nil {
		return nil, fmt.Errorf("start framework: %w", err)
	}
	return f, nil
}

func scopeOf(slot saves.Slot) saves.Scope {
	if slot == saves.SlotGlobal {
		return saves.Global
	}
	return saves.Local
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "modsave %s (framework %s)\n", version, cfg.FrameworkVersion)
			return nil
		},
	}
}
