package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studio/internal/domain"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyDeleteCmd, historySweepCmd)

	historyCmd.PersistentFlags().String("type", "video", "collection: video or image")

	historyDeleteCmd.Flags().String("id", "", "record id or asset URL (required)")
	_ = historyDeleteCmd.MarkFlagRequired("id")
}

func historyType(cmd *cobra.Command) (domain.AssetType, error) {
	name, _ := cmd.Flags().GetString("type")
	switch name {
	case "video":
		return domain.AssetVideo, nil
	case "image":
		return domain.AssetImage, nil
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the local generation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history records, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := historyType(cmd)
		if err != nil {
			return err
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		account := e.app.AccountKey()
		if _, err := e.store.SweepExpired(account, assetType); err != nil {
			e.logger.Warn().Err(err).Msg("expiry sweep failed")
		}
		records, err := e.store.List(account, assetType)
		if err != nil {
			return err
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCREATED\tEXPIRES\tURL")
		for _, rec := range records {
			expires := "never"
			if days := rec.DaysUntilExpiry(now); days >= 0 {
				expires = fmt.Sprintf("%dd", days)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.ID, rec.Title, domain.RelativeTime(rec.CreatedAt, now), expires, rec.AssetURL)
		}
		return w.Flush()
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one history record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := historyType(cmd)
		if err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("id")

		e, err := newEnv()
		if err != nil {
			return err
		}
		if err := e.store.Delete(e.app.AccountKey(), id, assetType); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Deleted.")
		return nil
	},
}

var historySweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := historyType(cmd)
		if err != nil {
			return err
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		removed, err := e.store.SweepExpired(e.app.AccountKey(), assetType)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Removed %d expired record(s).\n", removed)
		return nil
	},
}
