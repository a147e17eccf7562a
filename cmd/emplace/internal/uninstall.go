package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emplace-build/emplace/internal/env"
	"github.com/emplace-build/emplace/internal/install"
	"github.com/emplace-build/emplace/pkgs/manifest"
)

var (
	uninstallManifestDir string
	uninstallComponent   string
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove every path an install manifest records",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallManifestDir, "manifest-dir", ".", "Directory containing the manifest files")
	uninstallCmd.Flags().StringVar(&uninstallComponent, "component", "", "Component the manifest was installed with")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	component := env.Component(uninstallComponent)
	m, err := manifest.Load(uninstallManifestDir, component)
	if err != nil {
		return err
	}

	if err := install.Uninstall(m, uninstallManifestDir, newLogger()); err != nil {
		return fmt.Errorf("uninstall failed: %w", err)
	}
	fmt.Printf("removed %d paths\n", len(m.Entries))
	return nil
}
