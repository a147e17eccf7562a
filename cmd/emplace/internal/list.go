package internal

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emplace-build/emplace/internal/env"
	"github.com/emplace-build/emplace/internal/rules"
)

var (
	listRulesFile string
	listConfig    string
	listComponent string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show what an install run would place, without installing",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listRulesFile, "rules", rules.DefaultFile, "Rules file")
	listCmd.Flags().StringVar(&listConfig, "config", "", "Config name")
	listCmd.Flags().StringVar(&listComponent, "component", "", "Component filter")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	r, err := rules.Parse(listRulesFile, nil)
	if err != nil {
		return err
	}
	config := env.Config(listConfig, r.DefaultConfig)
	component := env.Component(listComponent)

	selected := r.Select(component, config)
	if len(selected) == 0 {
		fmt.Printf("no artifacts for component %s, config %s\n", displayComponent(component), config)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tCOMPONENT\tDEST\tSOURCE")
	for _, a := range selected {
		name := a.Name
		if a.Optional {
			name += " (optional)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name, a.Kind, a.EffectiveComponent(), a.Dest, r.SourcePath(&a))
	}
	return w.Flush()
}
