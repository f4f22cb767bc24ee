package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	renderFormat string
	renderOut    string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "print the manifest of every registered pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd.Context(), appCfg)
		if err != nil {
			return err
		}
		doc, err := renderManifest(p, appCfg)
		if err != nil {
			return err
		}

		var out []byte
		switch renderFormat {
		case "json":
			out, err = doc.EncodeJSON()
		case "yaml":
			out, err = doc.EncodeYAML()
		default:
			return fmt.Errorf("unknown format %q, want json or yaml", renderFormat)
		}
		if err != nil {
			return err
		}

		if renderOut != "" {
			return os.WriteFile(renderOut, out, 0o644)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "json", "output format (json or yaml)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "write to file instead of stdout")
}
