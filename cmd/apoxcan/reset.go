package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kabili207/apoxcan-go/transport/usbcan"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the board microcontroller",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBoard(cmd, func(_ context.Context, s *session) error {
			if err := s.board.ResetBoard(); err != nil {
				return err
			}
			fmt.Println(valueStyle.Render("Board reset"))
			return nil
		})
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(_ *cobra.Command, _ []string) error {
		ports, err := usbcan.ListSerialPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println(dimStyle.Render("No serial ports found"))
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(portsCmd)
}
