package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type environmentKey struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Algorithm     string `json:"algorithm"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func printKey(w io.Writer, k environmentKey) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", k.ID)
	fmt.Fprintf(tw, "ENVIRONMENT:\t%s\n", k.EnvironmentID)
	fmt.Fprintf(tw, "ALGORITHM:\t%s\n", k.Algorithm)
	fmt.Fprintf(tw, "ACTIVE:\t%t\n", k.Active)
	fmt.Fprintf(tw, "CREATED_AT:\t%s\n", k.CreatedAt)
	fmt.Fprintf(tw, "UPDATED_AT:\t%s\n", k.UpdatedAt)
	tw.Flush()
}

// createCmd は鍵の生成コマンド。
func createCmd() *cobra.Command {
	var (
		environmentID string
		algorithm     string
		inactive      bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a signing key for an environment and algorithm",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodPost, "/v1/environment-keys", map[string]any{
				"environment_id": environmentID,
				"algorithm":      algorithm,
				"active":         !inactive,
			}, http.StatusCreated)
			if err != nil {
				return err
			}
			var k environmentKey
			return render(cmd.OutOrStdout(), body, &k, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s key %s for environment %s\n", k.Algorithm, k.ID, k.EnvironmentID)
			})
		},
	}
	cmd.Flags().StringVar(&environmentID, "environment", "", "Environment ID (required)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Signing algorithm, e.g. HS256, RS256, ES256 (required)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the key in inactive state")
	cmd.MarkFlagRequired("environment")
	cmd.MarkFlagRequired("algorithm")
	return cmd
}

// getCmd は鍵のメタデータ取得コマンド。
func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key-id>",
		Short: "Get environment key metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodGet, "/v1/environment-keys/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			var k environmentKey
			return render(cmd.OutOrStdout(), body, &k, func(w io.Writer) { printKey(w, k) })
		},
	}
}

// listCmd は鍵一覧の取得コマンド。
func listCmd() *cobra.Command {
	var (
		environmentID string
		algorithm     string
		active        string
		sortSpec      string
		offset        int
		limit         int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List environment keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}

			q := url.Values{}
			if environmentID != "" {
				q.Set("environment_id", environmentID)
			}
			if algorithm != "" {
				q.Set("algorithm", algorithm)
			}
			if active != "" {
				q.Set("active", active)
			}
			if sortSpec != "" {
				q.Set("sort", sortSpec)
			}
			if cmd.Flags().Changed("offset") {
				q.Set("offset", strconv.Itoa(offset))
			}
			if cmd.Flags().Changed("limit") {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/environment-keys"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			body, err := c.do(cmd.Context(), http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				Keys []environmentKey `json:"keys"`
			}
			return render(cmd.OutOrStdout(), body, &result, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "ID\tENVIRONMENT\tALGORITHM\tACTIVE\tUPDATED_AT")
				for _, k := range result.Keys {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", k.ID, k.EnvironmentID, k.Algorithm, k.Active, k.UpdatedAt)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&environmentID, "environment", "", "Filter by environment ID")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Filter by algorithm")
	cmd.Flags().StringVar(&active, "active", "", "Filter by active flag (true/false)")
	cmd.Flags().StringVar(&sortSpec, "sort", "", "Sort spec, e.g. created_at:desc,algorithm")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of keys to skip")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of keys")
	return cmd
}

// updateCmd は鍵の有効/無効を切り替える。
func updateCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "update <key-id>",
		Short: "Update the active flag of an environment key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			req := map[string]any{}
			if cmd.Flags().Changed("active") {
				req["active"] = active
			}
			body, err := c.do(cmd.Context(), http.MethodPatch, "/v1/environment-keys/"+url.PathEscape(args[0]), req, http.StatusOK)
			if err != nil {
				return err
			}
			var k environmentKey
			return render(cmd.OutOrStdout(), body, &k, func(w io.Writer) { printKey(w, k) })
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "Whether the key may be used for signing")
	return cmd
}

// deleteCmd は鍵の削除コマンド。
func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an environment key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodDelete, "/v1/environment-keys/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				ID string `json:"id"`
			}
			return render(cmd.OutOrStdout(), body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted environment key %s\n", result.ID)
			})
		},
	}
}

// rotateCmd は鍵素材のローテーションコマンド。
func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace the key material of an environment key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodPost, "/v1/environment-keys/"+url.PathEscape(args[0])+"/rotate", nil, http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				ID      string `json:"id"`
				Message string `json:"message"`
			}
			return render(cmd.OutOrStdout(), body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", result.Message, result.ID)
			})
		},
	}
}

// materialCmd は署名に使う平文の鍵素材を取得する。
func materialCmd() *cobra.Command {
	var (
		environmentID string
		algorithm     string
	)
	cmd := &cobra.Command{
		Use:   "material",
		Short: "Get the decrypted signing material of the active key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/environments/%s/keys/%s/material", url.PathEscape(environmentID), url.PathEscape(algorithm))
			body, err := c.do(cmd.Context(), http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				Key string `json:"key"`
			}
			return render(cmd.OutOrStdout(), body, &result, func(w io.Writer) {
				fmt.Fprintln(w, result.Key)
			})
		},
	}
	cmd.Flags().StringVar(&environmentID, "environment", "", "Environment ID (required)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Signing algorithm (required)")
	cmd.MarkFlagRequired("environment")
	cmd.MarkFlagRequired("algorithm")
	return cmd
}
