/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/restful-users/apiserver/config"
	"github.com/restful-users/apiserver/internal/services"
	"github.com/restful-users/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportList bool
	exportShow string
	exportKeep int
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON snapshot of all users to object storage",
	Long: `Write a JSON snapshot of all users to the configured bucket
(MinIO or Google Cloud Storage).

  --list        print the snapshots already stored, oldest first
  --show KEY    print one stored snapshot
  --keep N      after exporting, delete all but the newest N snapshots`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		ctx := cmd.Context()

		objects, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}

		if exportList || exportShow != "" {
			// Reading snapshots needs no database.
			exports := services.NewExportService(nil, objects, logger)
			if exportShow != "" {
				snapshot, err := exports.Load(ctx, exportShow)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(snapshot, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}

			keys, err := exports.Snapshots(ctx)
			if err != nil {
				return err
			}
			for _, key := range keys {
				cmd.Println(key)
			}
			return nil
		}

		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
		}

		svc, closeDB, err := openUserService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		exports := services.NewExportService(svc, objects, logger)
		key, snapshot, err := exports.Export(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("exported %d users to %s/%s\n", snapshot.Count, objects.Bucket(), key)

		if exportKeep > 0 {
			deleted, err := exports.Prune(ctx, exportKeep)
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d old snapshots\n", len(deleted))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportList, "list", false, "list stored snapshots")
	exportCmd.Flags().StringVar(&exportShow, "show", "", "print the snapshot stored at this key")
	exportCmd.Flags().IntVar(&exportKeep, "keep", 0, "keep only the newest N snapshots after exporting (0 keeps all)")
	exportCmd.MarkFlagsMutuallyExclusive("list", "show")
}
