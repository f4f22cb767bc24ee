package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	havro "github.com/hamba/avro/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/flycs/pkg/asset"
	"github.com/siqueiraa/flycs/pkg/avro"
	"github.com/siqueiraa/flycs/pkg/faker"
)

var (
	avroStage   string
	avroVersion string
	avroCount   int
	avroSeed    int64
	avroCheck   string
)

var avroCmd = &cobra.Command{
	Use:   "avro",
	Short: "convert transformation schemas to and from Avro",
}

var avroExportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "print the Avro schema of a transformation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := findTransformation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := avro.FromFields(t.Name, t.Schema); err != nil {
			return err
		}
		doc, err := avro.SchemaJSON(t.Name, t.Schema)
		if err != nil {
			return err
		}
		if avroCheck != "" {
			return checkSchemaFile(cmd, t.Name, doc)
		}
		fmt.Fprintln(cmd.OutOrStdout(), doc)
		return nil
	},
}

var avroSampleCmd = &cobra.Command{
	Use:   "sample NAME",
	Short: "print random rows matching a transformation schema, one JSON object per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := findTransformation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		s, err := avro.FromFields(t.Name, t.Schema)
		if err != nil {
			return err
		}
		rec, ok := s.(*havro.RecordSchema)
		if !ok {
			return fmt.Errorf("schema of %s is not a record", t.Name)
		}

		rows, err := faker.New(avroSeed, time.Now()).Records(rec, avroCount)
		if err != nil {
			return err
		}
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
		for _, row := range rows {
			if _, err := avro.Encode(s, row); err != nil {
				return fmt.Errorf("sample row does not encode: %w", err)
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	},
}

// checkSchemaFile compares the exported schema with a committed schema file.
func checkSchemaFile(cmd *cobra.Command, name, doc string) error {
	committed, err := os.ReadFile(avroCheck)
	if err != nil {
		return err
	}
	same, err := avro.Equivalent(doc, string(committed))
	if err != nil {
		return fmt.Errorf("%s: %w", avroCheck, err)
	}
	if !same {
		return fmt.Errorf("schema of %s differs from %s", name, avroCheck)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema of %s matches %s\n", name, avroCheck)
	return nil
}

// findTransformation loads the project assets and returns the single
// transformation named name, narrowed by --stage and --version.
func findTransformation(ctx context.Context, name string) (*asset.Transformation, error) {
	located, err := asset.LoadProject(ctx, appCfg.Project.Root, appCfg.Loader.Concurrency)
	if err != nil {
		return nil, err
	}

	var found *asset.Transformation
	for _, l := range located {
		t, ok := l.Asset.(*asset.Transformation)
		if !ok || t.Name != name {
			continue
		}
		if (avroStage != "" && l.Stage != avroStage) || (avroVersion != "" && t.Version != avroVersion) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("transformation %s is ambiguous, use --stage and --version", name)
		}
		found = t
	}
	if found == nil {
		return nil, fmt.Errorf("transformation %s not found", name)
	}
	if len(found.Schema) == 0 {
		return nil, errors.New("transformation " + found.Name + " has no schema")
	}
	return found, nil
}

var avroImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "print the SCHEMA block for an Avro record schema file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fields, err := avro.ParseFields(string(data))
		if err != nil {
			return err
		}

		list := make([]any, 0, len(fields))
		for _, f := range fields {
			list = append(list, f.ToMap())
		}
		out, err := yaml.Marshal(map[string]any{"SCHEMA": list})
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	avroCmd.PersistentFlags().StringVar(&avroStage, "stage", "", "stage the transformation belongs to")
	avroCmd.PersistentFlags().StringVar(&avroVersion, "version", "", "transformation version")
	avroExportCmd.Flags().StringVar(&avroCheck, "check", "", "compare with a committed .avsc file instead of printing")
	avroSampleCmd.Flags().IntVarP(&avroCount, "count", "n", 10, "number of rows")
	avroSampleCmd.Flags().Int64Var(&avroSeed, "seed", 1, "random seed")
	avroCmd.AddCommand(avroExportCmd, avroImportCmd, avroSampleCmd)
}
