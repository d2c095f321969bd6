// Package cmd implements the guardianctl operator commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

// NewRootCommand builds the guardianctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "guardianctl",
		Short:         "Operator CLI for the Guardian triage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080",
		"Base URL of the triage engine HTTP API.")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"Timeout for API requests.")

	root.AddCommand(newIncidentsCommand())
	root.AddCommand(newDismissCommand())

	return root
}

// Execute runs guardianctl and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func apiGet(path string, query url.Values, out any) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	u = u.JoinPath(path)
	u.RawQuery = query.Encode()

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(u.String())
	if err != nil {
		return fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", u, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", u, err)
	}
	return nil
}
