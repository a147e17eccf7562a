package internal

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emplace-build/emplace/internal/env"
	"github.com/emplace-build/emplace/internal/install"
	"github.com/emplace-build/emplace/internal/rules"
	"github.com/emplace-build/emplace/pkgs/manifest"
	"github.com/emplace-build/emplace/x/striptool"
)

var (
	installRulesFile   string
	installPrefix      string
	installDestDir     string
	installConfig      string
	installComponent   string
	installStrip       bool
	installStripTool   string
	installManifestDir string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the artifacts a rules file declares",
	Long: `Install resolves the prefix, config and component filter, copies the
selected artifacts into place, optionally strips shared libraries, and
writes the install manifest. Any copy or strip error fails the run and
rolls back the files it created.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installRulesFile, "rules", rules.DefaultFile, "Rules file")
	installCmd.Flags().StringVar(&installPrefix, "prefix", "", "Install prefix (overrides "+env.PrefixEnv+")")
	installCmd.Flags().StringVar(&installDestDir, "destdir", "", "Staging root (overrides DESTDIR)")
	installCmd.Flags().StringVar(&installConfig, "config", "", "Config name (overrides "+env.ConfigEnv+")")
	installCmd.Flags().StringVar(&installComponent, "component", "", "Component filter (overrides "+env.ComponentEnv+")")
	installCmd.Flags().BoolVar(&installStrip, "strip", false, "Strip installed shared libraries")
	installCmd.Flags().StringVar(&installStripTool, "strip-tool", "", "Strip utility (overrides STRIP)")
	installCmd.Flags().StringVar(&installManifestDir, "manifest-dir", "", "Directory for manifest files (defaults to the rules file directory)")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	r, err := rules.Parse(installRulesFile, nil)
	if err != nil {
		return err
	}

	params := install.Params{
		Rules:       r,
		Prefix:      env.Prefix(installPrefix, r.Prefix, r.Project),
		DestDir:     env.DestDir(installDestDir),
		Config:      env.Config(installConfig, r.DefaultConfig),
		Component:   env.Component(installComponent),
		ManifestDir: installManifestDir,
		Logger:      newLogger(),
	}
	if installStrip {
		stripper := striptool.New(env.StripTool(installStripTool))
		if !stripper.Available() {
			return fmt.Errorf("strip tool %q not found", stripper.Tool())
		}
		params.Strip = true
		params.Stripper = stripper
	}

	in, err := install.New(params)
	if err != nil {
		return err
	}
	m, err := in.Run(context.Background())
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}

	fmt.Printf("installed %d paths under %s (component %s, config %s)\n",
		len(m.Entries), params.Prefix, displayComponent(params.Component), params.Config)
	fmt.Printf("manifest: %s\n", manifest.TextName(params.Component))
	return nil
}

func displayComponent(component string) string {
	if component == "" {
		return "all"
	}
	return component
}
