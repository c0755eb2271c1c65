/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/restful-users/apiserver/config"
	"github.com/spf13/cobra"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample users into an empty database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		svc, closeDB, err := openUserService(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		inserted, err := svc.SeedDefaults(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("inserted %d users\n", inserted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
