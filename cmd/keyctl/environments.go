package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

type environment struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// envCmd は環境の管理コマンド。
func envCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environments that own signing keys",
	}
	cmd.AddCommand(envCreateCmd(), envGetCmd(), envDeleteCmd())
	return cmd
}

func envCreateCmd() *cobra.Command {
	var projectID, name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodPost, "/v1/environments", map[string]any{
				"project_id":  projectID,
				"name":        name,
				"description": description,
			}, http.StatusCreated)
			if err != nil {
				return err
			}
			var e environment
			return render(cmd.OutOrStdout(), body, &e, func(w io.Writer) {
				fmt.Fprintf(w, "Created environment %q (%s)\n", e.Name, e.ID)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Environment name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("name")
	return cmd
}

func envGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <environment-id>",
		Short: "Get an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodGet, "/v1/environments/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			var e environment
			return render(cmd.OutOrStdout(), body, &e, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s/%s\tenabled=%t\n", e.ID, e.ProjectID, e.Name, e.Enabled)
			})
		},
	}
}

func envDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <environment-id>",
		Short: "Delete an environment and all of its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if _, err := c.do(cmd.Context(), http.MethodDelete, "/v1/environments/"+url.PathEscape(args[0]), nil, http.StatusNoContent); err != nil {
				return err
			}
			cmd.Printf("Deleted environment %s\n", args[0])
			return nil
		},
	}
}
