package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshbridge/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var output string
	save := &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to the user config directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			var err error
			if path == "" {
				path = filepath.Join(config.ConfigDir(), "config.yaml")
				err = a.cfg.Save()
			} else {
				err = a.cfg.SaveTo(path)
			}
			if err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}
	save.Flags().StringVarP(&output, "output", "o", "", "Write to this path instead")

	cmd.AddCommand(show, save)
	return cmd
}
