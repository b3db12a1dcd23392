package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studio/internal/domain"
	"studio/internal/orchestrator"
	"studio/internal/poll"
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("mode", "text-to-video", "generation mode: text-to-video, image-to-video, text-to-image, image-to-image")
	generateCmd.Flags().String("prompt", "", "text prompt")
	generateCmd.Flags().String("model", "", "model id")
	generateCmd.Flags().String("aspect-ratio", "", "aspect ratio, e.g. 16:9")
	generateCmd.Flags().String("provider", "", "upstream provider hint")
	generateCmd.Flags().Int("duration", 4, "video duration in seconds")
	generateCmd.Flags().String("resolution", "", "video resolution")
	generateCmd.Flags().String("quality", "", "video quality preset")
	generateCmd.Flags().StringArray("image", nil, "input image URL (repeatable)")
}

var modeKinds = map[string]domain.JobKind{
	"text-to-video":  domain.JobKindTextToVideo,
	"image-to-video": domain.JobKindImageToVideo,
	"text-to-image":  domain.JobKindTextToImage,
	"image-to-image": domain.JobKindImageToImage,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a generation job and wait for the asset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		kind, ok := modeKinds[mode]
		if !ok {
			return fmt.Errorf("unknown mode %q", mode)
		}
		prompt, _ := cmd.Flags().GetString("prompt")
		model, _ := cmd.Flags().GetString("model")
		aspectRatio, _ := cmd.Flags().GetString("aspect-ratio")
		provider, _ := cmd.Flags().GetString("provider")
		duration, _ := cmd.Flags().GetInt("duration")
		resolution, _ := cmd.Flags().GetString("resolution")
		quality, _ := cmd.Flags().GetString("quality")
		images, _ := cmd.Flags().GetStringArray("image")

		e, err := newEnv()
		if err != nil {
			return err
		}
		o, err := orchestrator.New(orchestrator.Options{
			API:     e.client,
			Balance: e.reconciler,
			History: e.store,
			App:     e.app,
			Poller:  poll.New(poll.Options{Interval: e.cfg.PollInterval, Logger: &e.logger}),
			Logger:  &e.logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req := orchestrator.Request{
			Kind:            kind,
			Prompt:          prompt,
			Model:           model,
			AspectRatio:     aspectRatio,
			Provider:        provider,
			DurationSeconds: duration,
			Resolution:      resolution,
			Quality:         quality,
			ImageURLs:       images,
		}
		fmt.Fprintf(os.Stdout, "This generation costs %d coins.\n", orchestrator.Cost(req))

		job, err := o.Generate(ctx, req)
		if err != nil {
			var fundsErr *domain.InsufficientFundsError
			if errors.As(err, &fundsErr) {
				return fmt.Errorf("%v - run 'studio topup' to add coins", fundsErr)
			}
			return err
		}
		fmt.Fprintf(os.Stdout, "Job %s is ready.\nAsset: %s\n", job.JobID, job.ResultURL)
		return nil
	},
}
