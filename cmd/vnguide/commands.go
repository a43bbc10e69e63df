// ABOUTME: One-shot subcommands: list, delete, destinations, speak and health
// ABOUTME: Each builds the app, performs a single operation and exits

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/vnguide/internal/destinations"
	"github.com/2389/vnguide/internal/i18n"
	"github.com/2389/vnguide/internal/render"
)

func newListCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, out)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.sess.Conversations(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing conversations: %w", err)
			}
			a.out.Conversations(list, a.sess.Snapshot().ID, a.sess.Language())
			return nil
		},
	}
}

func newDeleteCmd(flags *globalFlags, in io.Reader, out io.Writer) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a conversation by list position or id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, out)
			if err != nil {
				return err
			}
			defer a.Close()
			lang := a.sess.Language()

			if _, err := a.sess.Conversations(ctx); err != nil {
				return fmt.Errorf("listing conversations: %w", err)
			}
			id, err := a.sess.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			a.sess.RequestDeletion(id)
			if !yes && !confirm(in, out, i18n.T(lang, i18n.KeyConfirmDelete)) {
				a.sess.CancelDeletion()
				a.out.Info(i18n.T(lang, i18n.KeyCancelled))
				return nil
			}
			if _, err := a.sess.ConfirmDeletion(ctx); err != nil {
				return err
			}
			a.out.Info(i18n.T(lang, i18n.KeyDeleted))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// confirm asks question and reports whether the answer starts with y (or c for "có").
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(answer, "y") || strings.HasPrefix(answer, "c")
}

func newDestinationsCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "destinations [region] [type]",
		Short: "Browse destinations (regions: north, central, south; types: beach, mountain, city, culture, nature)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := destinations.ParseFilter(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), flags, out)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.sess.Destinations(cmd.Context(), filter)
			if err != nil {
				return err
			}
			a.out.Destinations(list, a.sess.Language())
			return nil
		},
	}
}

func newSpeakCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize speech and save it as an mp3",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, out)
			if err != nil {
				return err
			}
			defer a.Close()

			audio, err := a.sess.Speak(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, audio, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			a.out.Info(fmt.Sprintf("%s → %s", render.Bytes(len(audio)), output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "speech.mp3", "output file")
	return cmd
}

func newHealthCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, out)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintf(out, "%s (%s)\n", status.Status, a.client.BaseURL())
			if info, ok := a.token.Info(); ok {
				fmt.Fprintf(out, "token subject: %s, expires: %s\n", info.Subject, info.ExpiresAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}
