package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Fetch the authoritative coin balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		snap, err := e.reconciler.Refresh(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d coins\n", snap.Coins)
		return nil
	},
}
