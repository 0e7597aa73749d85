package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.aimuz.me/voicechat/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	target := path
	if target == "" {
		if target, err = config.Path(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", target)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	cfg := config.Default()
	if path != "" {
		err = cfg.SaveFile(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), target)
	return nil
}
