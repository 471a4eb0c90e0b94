package main

import (
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List managed, pending and available devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return request(cmd, "list_devices", nil)
	},
}

var deviceCmd = &cobra.Command{
	Use:   "device <serial>",
	Short: "Show one device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "get_device", serialData(args[0]))
	},
}

var addCmd = &cobra.Command{
	Use:   "add <serial>",
	Short: "Start managing an available device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "add_device", serialData(args[0]))
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <serial>",
	Short: "Stop managing a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "remove_device", serialData(args[0]))
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload [serial]",
	Short: "Reload device configuration from disk",
	Long:  "Reload one device's configuration, or every device's when no serial is given.",
	Args:  cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return request(cmd, "reload_device_configs", nil)
		}
		return request(cmd, "reload_device_config", serialData(args[0]))
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [serial]",
	Short: "Save device configuration to disk",
	Long:  "Save one device's configuration, or every device's when no serial is given.",
	Args:  cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return request(cmd, "save_device_configs", nil)
		}
		return request(cmd, "save_device_config", serialData(args[0]))
	},
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness <serial> <percent>",
	Short: "Set a device's brightness",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, err := parseUint8("percent", args[1])
		if err != nil {
			return err
		}
		if percent > 100 {
			return errPercent
		}
		return request(cmd, "set_brightness", map[string]any{"serial": args[0], "percent": percent})
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <serial>",
	Short: "Show recent button presses on a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, "get_action_history", map[string]any{"serial": args[0], "limit": historyLimit})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")

	rootCmd.AddCommand(devicesCmd, deviceCmd, addCmd, removeCmd, reloadCmd, saveCmd, brightnessCmd, historyCmd)
}

func serialData(serial string) map[string]any {
	return map[string]any{"serial": serial}
}
