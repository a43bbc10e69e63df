// ABOUTME: Entry point for vnguide, the terminal client for the Vietnam travel assistant
// ABOUTME: Cobra root command; chat is the default, with one-shot list/delete/destinations/speak/health

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var version = "dev"

const banner = `
__   ___ __   __ _ _   _(_) __| | ___
\ \ / / '_ \ / _' | | | | |/ _' |/ _ \
 \ V /| | | | (_| | |_| | | (_| |  __/
  \_/ |_| |_|\__, |\__,_|_|\__,_|\___|
             |___/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree reading from in and writing to out.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "vnguide",
		Short: "Chat with the Vietnam travel assistant",
		Long: `vnguide is a terminal client for the Vietnam travel assistant.
Run it without a subcommand to start chatting. Ask in Vietnamese or English.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags, in, out)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(in)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file path (default $XDG_CONFIG_HOME/vnguide/config.yaml)")
	pf.StringVar(&flags.apiURL, "api-url", "", "backend API root, overriding config")
	pf.StringVarP(&flags.lang, "lang", "l", "", "language: vi or en")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags, in, out)
		},
	}
	chat.Flags().StringVar(&flags.seed, "seed", "", "open a new conversation and send this message first")
	root.Flags().StringVar(&flags.seed, "seed", "", "open a new conversation and send this message first")

	root.AddCommand(
		chat,
		newListCmd(flags, out),
		newDeleteCmd(flags, in, out),
		newDestinationsCmd(flags, out),
		newSpeakCmd(flags, out),
		newHealthCmd(flags, out),
	)
	return root
}
