package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studio/internal/balance"
	"studio/internal/domain"
	"studio/internal/payment"
	"studio/internal/wallet"
)

func init() {
	rootCmd.AddCommand(topupCmd, claimCmd)

	topupCmd.Flags().String("amount", "", "USDC amount to transfer (required)")
	topupCmd.Flags().String("from", "", "sender address (defaults to WALLET_ADDRESS)")
	_ = topupCmd.MarkFlagRequired("amount")

	claimCmd.Flags().String("tx", "", "transaction hash of a mined transfer (required)")
	_ = claimCmd.MarkFlagRequired("tx")
}

func newExecutor(e *env) (*payment.Executor, error) {
	provider, err := wallet.NewRPCProvider(wallet.RPCOptions{
		Endpoint: e.cfg.WalletRPCURL,
		Logger:   &e.logger,
	})
	if err != nil {
		return nil, err
	}
	return payment.NewExecutor(payment.Options{
		Provider:       provider,
		Chain:          wallet.ArcTestnet,
		TreasuryAddr:   e.cfg.TreasuryAddr,
		Claimer:        e.client,
		Refresher:      e.reconciler,
		Logger:         &e.logger,
		ReceiptTimeout: e.cfg.ReceiptTimeout,
	})
}

var topupCmd = &cobra.Command{
	Use:   "topup",
	Short: "Buy coins with an on-chain USDC transfer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetString("amount")
		from, _ := cmd.Flags().GetString("from")

		e, err := newEnv()
		if err != nil {
			return err
		}
		if from == "" {
			from = e.app.WalletAddress()
		}

		coins, err := balance.PreviewCoins(amount, wallet.ArcTestnet.Decimals)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Transferring %s USDC buys %d coins.\n", amount, coins)

		exec, err := newExecutor(e)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := exec.TopUp(ctx, from, amount)
		if err != nil {
			var timeoutErr *domain.TimeoutError
			if errors.As(err, &timeoutErr) {
				return fmt.Errorf("%v - once it confirms, run 'studio claim --tx %s'", err, timeoutErr.TxHash)
			}
			return err
		}
		fmt.Fprintf(os.Stdout, "Top-up settled in %s. Balance: %d coins.\n", result.TxHash, result.Coins)
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim coins for an already-mined transfer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		txHash, _ := cmd.Flags().GetString("tx")

		e, err := newEnv()
		if err != nil {
			return err
		}
		exec, err := newExecutor(e)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := exec.Claim(ctx, txHash); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Claimed %s. Balance: %d coins.\n", txHash, e.app.Balance().Coins)
		return nil
	},
}
