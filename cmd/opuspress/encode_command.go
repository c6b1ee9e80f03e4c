package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"opuspress/internal/fetch"
	"opuspress/internal/fileutil"
	"opuspress/internal/ledger"
	"opuspress/internal/logging"
	"opuspress/internal/metrics"
	"opuspress/internal/opus"
	"opuspress/internal/pipeline"
	"opuspress/internal/session"
	"opuspress/internal/textutil"
)

func newEncodeCommand(cmdCtx *commandContext) *cobra.Command {
	var outputPath string
	var bitrate string
	var speech bool

	cmd := &cobra.Command{
		Use:   "encode <file-or-url>",
		Short: "Encode an audio file or URL to Opus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.New(logging.Options{
				Level:       "warn",
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			tier, ok := opus.TierForBitrate(cfg.Defaults.BitrateKbps)
			if !ok {
				return fmt.Errorf("no quality tier for default bitrate %d kbps", cfg.Defaults.BitrateKbps)
			}
			if strings.TrimSpace(bitrate) != "" {
				parsed, ok := opus.ParseTier(bitrate)
				if !ok {
					choices := make([]string, 0, len(opus.AllTiers()))
					for _, t := range opus.AllTiers() {
						choices = append(choices, fmt.Sprintf("%s (%s)", t, t.Bitrate()))
					}
					return fmt.Errorf("unknown quality tier %q (choose one of %s)",
						bitrate, strings.Join(choices, ", "))
				}
				tier = parsed
			}
			speechEnabled := cfg.Defaults.SpeechOptimized
			if cmd.Flags().Changed("speech") {
				speechEnabled = speech
			}

			sessions := session.NewStore(session.Settings{Tier: tier, SpeechOptimized: speechEnabled})

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer store.Close()

			input := args[0]
			var source fetch.Source
			if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
				source = fetch.NewHTTPSource(nil, input, cfg.MaxSourceBytes())
			} else {
				source = fetch.NewFileSource(input, cfg.MaxSourceBytes())
			}

			dest := strings.TrimSpace(outputPath)
			if dest == "" {
				base := textutil.SanitizeFileName(source.Name())
				base = strings.TrimSuffix(base, filepath.Ext(base))
				if base == "" {
					base = "output"
				}
				dest = base + ".opus"
			}

			reporter := &consoleReporter{out: cmd.OutOrStdout(), dest: dest}
			p := pipeline.New(cfg, sessions, nil, store, logger)
			job, err := p.Process(ctx, pipeline.Request{
				UserID:   "cli",
				Source:   source,
				Reporter: reporter,
			})
			if err != nil {
				return fmt.Errorf("%s: %s", job.FailureKind, job.Diagnostic)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", dest)
			fmt.Fprintf(out, "  bitrate:   %s (%s)\n", tier.Bitrate(),
				textutil.Ternary(speechEnabled, "speech optimized", "general audio"))
			fmt.Fprintf(out, "  duration:  %s\n", metrics.FormatDuration(job.DurationSeconds))
			fmt.Fprintf(out, "  size:      %s -> %s (%s smaller)\n",
				metrics.FormatBytes(job.InputBytes),
				metrics.FormatBytes(job.OutputBytes),
				metrics.FormatRatio(job.CompressionRatio))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path for the encoded file")
	cmd.Flags().StringVarP(&bitrate, "bitrate", "b", "", "Quality tier (low|mid|high or 16k|24k|32k)")
	cmd.Flags().BoolVar(&speech, "speech", true, "Optimize for speech (mono, packet-loss resilient)")
	return cmd
}

// consoleReporter prints stage transitions and moves the artifact to
// its destination before the working directory disappears.
type consoleReporter struct {
	out  io.Writer
	dest string
}

func (r *consoleReporter) Announce(_ context.Context, job pipeline.Job) {
	fmt.Fprintf(r.out, "Encoding %s (%s tier)\n", job.SourceName, job.Tier)
}

func (r *consoleReporter) UpdateStatus(_ context.Context, job pipeline.Job) {
	if job.Status.IsTerminal() {
		return
	}
	fmt.Fprintf(r.out, "  %s...\n", job.Status)
}

func (r *consoleReporter) DeliverArtifact(_ context.Context, _ pipeline.Job, artifactPath string) error {
	return fileutil.MoveFile(artifactPath, r.dest)
}

func (r *consoleReporter) DropStatus(context.Context, pipeline.Job) {}
