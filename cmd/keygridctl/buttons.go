package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var errPercent = errors.New("percent must be between 0 and 100")

var buttonCmd = &cobra.Command{
	Use:   "button",
	Short: "Inspect and edit buttons on the current screen",
}

var buttonGetCmd = &cobra.Command{
	Use:   "get <serial> <key>",
	Short: "Show a button",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		return request(cmd, "get_button", data)
	},
}

var buttonNewCmd = &cobra.Command{
	Use:   "new <serial> <key> [component]",
	Short: "Create an empty button, optionally seeded with a component",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		if len(args) == 3 {
			data["component"] = args[2]
			return request(cmd, "new_button_from_component", data)
		}
		return request(cmd, "new_button", data)
	},
}

var buttonSetCmd = &cobra.Command{
	Use:   "set <serial> <key> <file>",
	Short: "Replace a button with the JSON in file (- for stdin)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args[2])
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("%s: not valid JSON", args[2])
		}
		data["button"] = json.RawMessage(raw)
		return request(cmd, "set_button", data)
	},
}

var buttonClearCmd = &cobra.Command{
	Use:   "clear <serial> <key>",
	Short: "Remove a button",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		return request(cmd, "clear_button", data)
	},
}

var buttonCopyCmd = &cobra.Command{
	Use:   "copy <serial> <key>",
	Short: "Copy a button to the clipboard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		return request(cmd, "copy_button", data)
	},
}

var pasteLink bool

var buttonPasteCmd = &cobra.Command{
	Use:   "paste <serial> <key>",
	Short: "Paste the clipboard onto a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		data["link"] = pasteLink
		return request(cmd, "paste_button", data)
	},
}

var pressCmd = &cobra.Command{
	Use:   "press <serial> <key>",
	Short: "Run a button's actions as if it were pressed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		return request(cmd, "do_button_action", data)
	},
}

var componentCmd = &cobra.Command{
	Use:   "component",
	Short: "Manage components attached to a button",
}

var componentAddCmd = &cobra.Command{
	Use:   "add <serial> <key> <component>",
	Short: "Attach a component to a button",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return componentRequest(cmd, "add_component", args)
	},
}

var componentRemoveCmd = &cobra.Command{
	Use:   "remove <serial> <key> <component>",
	Short: "Detach a component from a button",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return componentRequest(cmd, "remove_component", args)
	},
}

var componentValuesCmd = &cobra.Command{
	Use:   "values <serial> <key> <component>",
	Short: "Show a component's configuration values",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return componentRequest(cmd, "get_component_values", args)
	},
}

var componentSetCmd = &cobra.Command{
	Use:   "set <serial> <key> <component> <file>",
	Short: "Set a component's values from a JSON array in file (- for stdin)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := keyArgs(args)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args[3])
		if err != nil {
			return err
		}
		var values []json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("%s: expected a JSON array: %w", args[3], err)
		}
		data["component"] = args[2]
		data["values"] = values
		return request(cmd, "set_component_values", data)
	},
}

func init() {
	buttonPasteCmd.Flags().BoolVar(&pasteLink, "link", false, "Share state with the copied button instead of cloning it")

	buttonCmd.AddCommand(buttonGetCmd, buttonNewCmd, buttonSetCmd, buttonClearCmd, buttonCopyCmd, buttonPasteCmd)
	componentCmd.AddCommand(componentAddCmd, componentRemoveCmd, componentValuesCmd, componentSetCmd)
	rootCmd.AddCommand(buttonCmd, componentCmd, pressCmd)
}

// keyArgs builds the serial and key fields from the first two arguments.
func keyArgs(args []string) (map[string]any, error) {
	key, err := parseUint8("key", args[1])
	if err != nil {
		return nil, err
	}
	return map[string]any{"serial": args[0], "key": key}, nil
}

func componentRequest(cmd *cobra.Command, typ string, args []string) error {
	data, err := keyArgs(args)
	if err != nil {
		return err
	}
	data["component"] = args[2]
	return request(cmd, typ, data)
}

func parseUint8(name, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0-255", name, s)
	}
	return uint8(v), nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		buf, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return buf, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf, nil
}
