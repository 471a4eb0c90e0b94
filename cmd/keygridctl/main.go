// keygridctl talks to a running Keygrid daemon over its control socket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var version = "dev"

const defaultSocketPath = "/tmp/keygrid.sock"

var (
	socketPath string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "keygridctl",
	Short: "Control a Keygrid daemon",
	Long: `keygridctl sends control protocol requests to a running Keygrid daemon.

It allows you to:
  - List, add and remove managed devices
  - Create, edit and press buttons
  - Manage the per-device image library
  - Watch live session events`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	def := defaultSocketPath
	if env := os.Getenv("KEYGRID_SOCKET_PATH"); env != "" {
		def = env
	}
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", def, "Path to the daemon control socket")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withClient dials the daemon, runs fn and closes the connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, err := Dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// request sends one request and prints its data. Any result other than
// Ok, Saved or Reloaded is returned as an error.
func request(cmd *cobra.Command, typ string, data any) error {
	return withClient(cmd, func(ctx context.Context, c *Client) error {
		resp, err := c.Do(ctx, typ, data)
		if err != nil {
			return err
		}
		return printResponse(cmd.OutOrStdout(), resp)
	})
}

func printResponse(w io.Writer, resp *Response) error {
	if err := resp.Err(); err != nil {
		return err
	}
	if jsonOutput {
		return writeIndented(w, resp.Data)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		fmt.Fprintln(w, resp.Result)
		return nil
	}
	return writeIndented(w, resp.Data)
}

func writeIndented(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		fmt.Fprintln(w, "null")
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
