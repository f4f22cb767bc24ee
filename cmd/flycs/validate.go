package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "load and validate every asset and pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd.Context(), appCfg)
		if err != nil {
			return err
		}
		doc, err := renderManifest(p, appCfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d assets, %d pipelines valid (fingerprint %s)\n",
			len(p.Assets), len(doc.Pipelines), doc.Fingerprint)
		return nil
	},
}
