package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/intake"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/routing"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verification"
)

type checkOptions struct {
	kind        string
	caption     string
	autoReply   float64
	humanReview float64
	asJSON      bool
}

func newCheckCmd() *cobra.Command {
	opts := checkOptions{
		kind:        string(content.KindText),
		autoReply:   routing.DefaultAutoReplyThreshold,
		humanReview: routing.DefaultHumanReviewThreshold,
	}

	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Run the detectors on a message offline and print the verdict",
		Long: "Runs detection, aggregation and routing against an in-memory store.\n" +
			"Reads the message from stdin when no argument is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := messageText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), text, opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "type", opts.kind, "payload type: text, image or audio")
	cmd.Flags().StringVar(&opts.caption, "caption", "", "image caption")
	cmd.Flags().Float64Var(&opts.autoReply, "auto-reply-threshold", opts.autoReply, "auto reply threshold")
	cmd.Flags().Float64Var(&opts.humanReview, "human-review-threshold", opts.humanReview, "human review threshold")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func messageText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runCheck(ctx context.Context, out io.Writer, text string, opts checkOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	router, err := routing.NewRouter(opts.autoReply, opts.humanReview)
	if err != nil {
		return err
	}

	logger := quietLogger()
	svc, err := pipeline.NewService(detection.DefaultSet(logger), verification.NewMemoryStore(),
		pipeline.Options{Router: router}, logger)
	if err != nil {
		return err
	}

	res, err := svc.Submit(ctx, pipeline.Request{
		Content: content.Normalize(content.Payload{
			Type:    strings.ToLower(opts.kind),
			Text:    text,
			Caption: opts.caption,
		}),
		UserPhone: "cli",
		Channel:   pipeline.ChannelAPI,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(out, intake.FormatReply(*res, false))
	return err
}
