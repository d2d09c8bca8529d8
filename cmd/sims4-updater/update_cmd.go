package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xor-128/TheSims4Updater/internal/updater"
	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

var verifyAfterUpdate bool

// createUpdateCommand creates the update subcommand
func createUpdateCommand() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "updates the installed game to the latest version",
		Long: `Update resolves the chain of incremental patches between the
installed version and the latest release, downloads each patch, applies
its binary deltas and file replacements in order, and optionally verifies
the installed files afterwards.`,
		Args: cobra.NoArgs,
		RunE: executeUpdate,
	}

	updateCmd.Flags().BoolVar(&verifyAfterUpdate, "verify", true,
		"Verify installed sections after patching")
	return updateCmd
}

// executeUpdate handles the update command execution logic
func executeUpdate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	u := updater.New(cfg)
	session, err := u.NewSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}

	if err := u.Run(cmd.Context(), session); err != nil {
		if errors.Is(err, updater.ErrFullInstallRequired) {
			return fmt.Errorf("no installed game found in %s; run a full install first", cfg.GameDir)
		}
		return fmt.Errorf("update failed: %w", err)
	}

	if !verifyAfterUpdate {
		return nil
	}
	allOK := true
	for name := range session.Manifest.Sections {
		ok, err := u.VerifySection(cmd.Context(), session.Manifest, name)
		if err != nil {
			return fmt.Errorf("verifying section %s: %w", name, err)
		}
		if !ok {
			allOK = false
		}
	}
	if !allOK {
		return fmt.Errorf("post-update verification failed")
	}
	log.Info("update complete")
	return nil
}
