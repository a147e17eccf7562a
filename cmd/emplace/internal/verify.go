package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emplace-build/emplace/internal/env"
	"github.com/emplace-build/emplace/pkgs/manifest"
)

var (
	verifyManifestDir string
	verifyComponent   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an installed tree against its manifest",
	Long: `Verify re-hashes every path the install manifest records and reports
files that are missing or whose content has drifted since the install.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyManifestDir, "manifest-dir", ".", "Directory containing the manifest files")
	verifyCmd.Flags().StringVar(&verifyComponent, "component", "", "Component the manifest was installed with")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	component := env.Component(verifyComponent)
	m, err := manifest.Load(verifyManifestDir, component)
	if err != nil {
		return err
	}

	problems, err := m.Verify()
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Printf("ok: %d paths match the manifest\n", len(m.Entries))
		return nil
	}
	for _, p := range problems {
		fmt.Println(p)
	}
	return fmt.Errorf("%d of %d paths do not match the manifest", len(problems), len(m.Entries))
}
