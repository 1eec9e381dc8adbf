package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leafbox/leafbox-core/internal/plant"
)

func newPlantInfoCmd(load configLoader) *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "plant-info",
		Short: "Plant reference data commands",
		Long:  `Commands for managing the plant reference data served by /api/plants/lookup.`,
	}

	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import plant reference records",
		Long: `Import a JSON array of plant reference records. Records whose
latin_name is already present are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var records []plant.Info
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			for i := range records {
				if err := records[i].Validate(); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			repo := plant.NewInfoRepository(db.DB)
			var added, skipped int
			for i := range records {
				inserted, err := repo.Add(cmd.Context(), &records[i])
				if err != nil {
					return fmt.Errorf("adding %q: %w", records[i].LatinName, err)
				}
				if inserted {
					added++
				} else {
					skipped++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d added, %d already present\n", added, skipped)
			return nil
		},
	}

	infoCmd.AddCommand(importCmd)
	return infoCmd
}
