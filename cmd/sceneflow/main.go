// Command sceneflow runs the scene transition demo and checks configs.
package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/younwookim/sceneflow/internal/infrastructure/config"
)

//go:embed configs
var configFS embed.FS

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "sceneflow",
		Short:        "Asynchronous scene transitions for ebiten games",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"Directory containing "+config.FileName+" (default: embedded config)")

	root.AddCommand(newRunCmd(&configDir), newValidateCmd(&configDir))
	return root
}

// newConfigLoader reads from dir, or from the embedded configs when dir is
// empty.
func newConfigLoader(dir string) (*config.Loader, error) {
	if dir != "" {
		return config.NewLoader(dir), nil
	}
	fsys, err := fs.Sub(configFS, "configs")
	if err != nil {
		return nil, fmt.Errorf("failed to get config subfs: %w", err)
	}
	return config.NewFSLoader(fsys, "configs"), nil
}

func newValidateCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check " + config.FileName + " and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := newConfigLoader(*configDir)
			if err != nil {
				return err
			}
			cfg, err := loader.LoadSceneflow()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %d scenes, start %q\n", len(cfg.Scenes), cfg.Transition.Start)
			for i, s := range cfg.Scenes {
				kind := "scene"
				if s.LoadingScreen != nil {
					kind = "loading screen"
				}
				fmt.Fprintf(out, "  #%d %-10s %-14s load %v unload %v\n", i, s.Name, kind, s.LoadTime, s.UnloadTime)
			}
			return nil
		},
	}
}
