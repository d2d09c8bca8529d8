package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xor-128/TheSims4Updater/internal/updater"
)

// createResolveCommand creates the resolve subcommand
func createResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "shows the patch chain without applying it",
		Long: `Resolve prints the ordered patches that an update run would apply,
together with their download sizes, without touching the installation.`,
		Args: cobra.NoArgs,
		RunE: executeResolve,
	}
}

// executeResolve handles the resolve command execution logic
func executeResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	u := updater.New(cfg)
	session, err := u.NewSession(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if session.Installed == nil {
		fmt.Fprintln(out, "game not installed: full install required")
		return nil
	}
	fmt.Fprintf(out, "installed: %s\n", session.Installed)
	if !session.Chain.Latest.IsZero() {
		fmt.Fprintf(out, "latest:    %s\n", session.Chain.Latest)
	}
	if session.Chain.UpToDate() {
		fmt.Fprintln(out, "already up to date")
		return nil
	}
	for _, d := range session.Chain.Patches {
		fmt.Fprintf(out, "  %s -> %s  (%s, %d files)\n",
			d.From, d.To, humanize.Bytes(uint64(d.CompressedSize)), len(d.Files))
	}
	fmt.Fprintf(out, "total download: %s\n", humanize.Bytes(uint64(session.Chain.TotalCompressedSize())))
	return nil
}
