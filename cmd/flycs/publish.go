package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siqueiraa/flycs/pkg/catalog"
	"github.com/siqueiraa/flycs/pkg/publish"
)

var publishPrune bool

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "upload changed pipelines to S3 and record them in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !appCfg.Publish.S3.Enabled {
			return errors.New("publishing is disabled, set publish.s3.enabled")
		}

		p, err := loadProject(ctx, appCfg)
		if err != nil {
			return err
		}
		doc, err := renderManifest(p, appCfg)
		if err != nil {
			return err
		}

		store, err := catalog.Open(catalog.Options{Path: appCfg.Catalog.Path, InMemory: appCfg.Catalog.InMemory})
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer store.Close()

		pub, err := publish.NewS3Publisher(ctx, appCfg.Publish.S3)
		if err != nil {
			return err
		}
		if appCfg.Publish.Snapshot {
			if _, err := publish.RestoreSnapshot(ctx, store, pub); err != nil {
				return err
			}
		}

		res, err := publish.Sync(ctx, store, pub, doc, publish.Options{
			Prune:    publishPrune,
			Snapshot: appCfg.Publish.Snapshot,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "uploaded: %s\n", strings.Join(res.Uploaded, ", "))
		fmt.Fprintf(w, "unchanged: %d\n", len(res.Unchanged))
		if publishPrune {
			fmt.Fprintf(w, "pruned: %s\n", strings.Join(res.Pruned, ", "))
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().BoolVar(&publishPrune, "prune", false, "drop catalog entries of pipelines no longer defined")
}
