package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show client and daemon versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "keygridctl %s\n", version)
		return request(cmd, "socket_version", nil)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the daemon is answering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return request(cmd, "ping", nil)
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List loaded modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return request(cmd, "list_modules", nil)
	},
}

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List available components",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return request(cmd, "list_components", nil)
	},
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage a device's image library",
}

var imageListCmd = &cobra.Command{
	Use:   "list <serial>",
	Short: "List a device's images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "list_images", serialData(args[0]))
	},
}

var imageAddCmd = &cobra.Command{
	Use:   "add <serial> <file>",
	Short: "Add an image file to a device's library",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		return request(cmd, "add_image", map[string]any{
			"serial": args[0],
			"image":  base64.StdEncoding.EncodeToString(raw),
		})
	},
}

var imageRemoveCmd = &cobra.Command{
	Use:   "remove <serial> <id>",
	Short: "Remove an image from a device's library",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "remove_image", map[string]any{"serial": args[0], "id": args[1]})
	},
}

var stackCmd = &cobra.Command{
	Use:   "stack <serial>",
	Short: "Show a device's screen stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "get_stack", serialData(args[0]))
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen <serial>",
	Short: "Show the screen currently on top of the stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "get_current_screen", serialData(args[0]))
	},
}

var forcePop bool

var popCmd = &cobra.Command{
	Use:   "pop <serial>",
	Short: "Pop the top screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if forcePop {
			return request(cmd, "forcibly_pop_screen", serialData(args[0]))
		}
		return request(cmd, "pop_screen", serialData(args[0]))
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <serial>",
	Short: "Drop every screen above the root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "reset_stack", serialData(args[0]))
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <serial>",
	Short: "Apply pending edits and save the device configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "commit_changes", serialData(args[0]))
	},
}

var rawCmd = &cobra.Command{
	Use:   "request <type> [json]",
	Short: "Send an arbitrary request",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data any
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("request data is not valid JSON")
			}
			data = json.RawMessage(args[1])
		}
		return request(cmd, args[0], data)
	},
}

var watchEvents []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		c, err := Dial(dialCtx, socketPath)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Do(dialCtx, "subscribe", map[string]any{"events": watchEvents})
		if err != nil {
			return err
		}
		if err := resp.Err(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return c.Events(ctx, func(ev json.RawMessage) {
			fmt.Fprintln(out, string(ev))
		})
	},
}

func init() {
	popCmd.Flags().BoolVarP(&forcePop, "force", "f", false, "Pop the root too, leaving a blank screen")
	watchCmd.Flags().StringSliceVarP(&watchEvents, "events", "e", []string{"*"}, "Event types to watch")

	imageCmd.AddCommand(imageListCmd, imageAddCmd, imageRemoveCmd)
	rootCmd.AddCommand(versionCmd, pingCmd, modulesCmd, componentsCmd, imageCmd,
		stackCmd, screenCmd, popCmd, resetCmd, commitCmd, rawCmd, watchCmd)
}
