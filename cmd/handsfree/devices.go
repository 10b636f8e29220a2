package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handsfree/internal/infra/evdev"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices and which of them report the trigger key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		code, err := evdev.ParseKey(cfg.Device.TriggerKey)
		if err != nil {
			return fmt.Errorf("device.trigger_key: %w", err)
		}

		devices, err := evdev.ListDevices(code)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no readable input devices found (are you root?)")
			return nil
		}

		fmt.Printf("trigger key: %s\n\n", evdev.KeyName(code))
		for _, d := range devices {
			marker := " "
			switch {
			case d.HasTrigger:
				marker = "*"
			case d.Keyboardy:
				marker = "k"
			}
			fmt.Printf("%s %-22s %s\n", marker, d.Path, d.Name)
		}
		fmt.Println("\n* reports the trigger key, k looks like a keyboard")
		return nil
	},
}
