package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xor-128/TheSims4Updater/internal/updater"
)

// createVerifyCommand creates the verify subcommand
func createVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [SECTION...]",
		Short: "verifies installed files against the manifest checksums",
		Long: `Verify checks the installed files of the given manifest sections
(base game, DLC packs) against their expected checksums. With no arguments
every section in the manifest is checked.`,
		RunE: executeVerify,
	}
}

// executeVerify handles the verify command execution logic
func executeVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	u := updater.New(cfg)
	session, err := u.NewSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	sections := args
	if len(sections) == 0 {
		for name := range session.Manifest.Sections {
			sections = append(sections, name)
		}
	}

	var failed []string
	for _, name := range sections {
		ok, err := u.VerifySection(cmd.Context(), session.Manifest, name)
		if err != nil {
			return err
		}
		if !ok {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("verification failed for sections: %v", failed)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "all sections verified")
	return nil
}
