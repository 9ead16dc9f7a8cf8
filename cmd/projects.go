// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var projectsName string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the account's projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		projects, err := a.client.Projects(cmd.Context(), projectsName)
		if err != nil {
			return err
		}
		data := [][]string{{"id", "name", ""}}
		for _, p := range projects {
			mark := ""
			if p.ID == a.cfg.Project {
				mark = "*"
			}
			data = append(data, []string{p.ID, p.Name, mark})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	projectsCmd.Flags().StringVar(&projectsName, "name", "", "filter by project name")
	rootCmd.AddCommand(projectsCmd)
}
