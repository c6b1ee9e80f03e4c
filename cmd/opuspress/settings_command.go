package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"opuspress/internal/opus"
	"opuspress/internal/textutil"
)

// settingsView mirrors the daemon's settings payload.
type settingsView struct {
	User            string `json:"user"`
	Tier            string `json:"tier"`
	BitrateKbps     int    `json:"bitrate_kbps"`
	SpeechOptimized bool   `json:"speech_optimized"`
}

func newSettingsCommand(cmdCtx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change per-user encode settings on the daemon",
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "cli", "User identity the settings apply to")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			var view settingsView
			if err := client.getJSON(cmd.Context(), "/api/settings?user="+user, &view); err != nil {
				return err
			}
			printSettings(cmd, view)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Update settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}

			tierFlag, _ := cmd.Flags().GetString("bitrate")
			speechFlag, _ := cmd.Flags().GetBool("speech")

			var current settingsView
			if err := client.getJSON(cmd.Context(), "/api/settings?user="+user, &current); err != nil {
				return err
			}
			payload := settingsView{
				User:            user,
				Tier:            current.Tier,
				SpeechOptimized: current.SpeechOptimized,
			}
			if strings.TrimSpace(tierFlag) != "" {
				tier, ok := opus.ParseTier(tierFlag)
				if !ok {
					return fmt.Errorf("unknown quality tier %q", tierFlag)
				}
				payload.Tier = string(tier)
			}
			if cmd.Flags().Changed("speech") {
				payload.SpeechOptimized = speechFlag
			}

			var view settingsView
			if err := client.putJSON(cmd.Context(), "/api/settings", payload, &view); err != nil {
				return err
			}
			printSettings(cmd, view)
			return nil
		},
	}
	set.Flags().StringP("bitrate", "b", "", "Quality tier (low|mid|high or 16k|24k|32k)")
	set.Flags().Bool("speech", true, "Optimize for speech")

	cmd.AddCommand(show, set)
	return cmd
}

func printSettings(cmd *cobra.Command, view settingsView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:    %s\n", view.User)
	fmt.Fprintf(out, "Tier:    %s (%dk)\n", textutil.TitleCase(view.Tier), view.BitrateKbps)
	fmt.Fprintf(out, "Profile: %s\n",
		textutil.Ternary(view.SpeechOptimized, "speech optimized (mono)", "general audio (stereo)"))
}
