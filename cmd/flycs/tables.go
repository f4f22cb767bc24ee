package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/siqueiraa/flycs/pkg/asset"
)

var tablesJoins bool

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "list the tables referenced by every asset query",
	RunE: func(cmd *cobra.Command, args []string) error {
		located, err := asset.LoadProject(cmd.Context(), appCfg.Project.Root, appCfg.Loader.Concurrency)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, l := range located {
			base := l.Asset.Base()
			lineage, err := asset.Analyze(base.Query)
			if err != nil {
				log.Warn().Str("component", "tables").Str("asset", base.Name).Err(err).Msg("Query could not be parsed")
				continue
			}
			fmt.Fprintf(w, "%s/%s@%s: %s\n", l.Stage, base.Name, base.Version, strings.Join(lineage.Tables, ", "))
			if !tablesJoins {
				continue
			}
			for _, jc := range lineage.JoinClauses {
				fmt.Fprintf(w, "  %s(%s) = %s(%s)\n", jc.LeftTable, strings.Join(jc.LeftKeys, ", "),
					jc.RightTable, strings.Join(jc.RightKeys, ", "))
			}
		}
		return nil
	},
}

func init() {
	tablesCmd.Flags().BoolVar(&tablesJoins, "joins", false, "also print equi-join conditions")
}
