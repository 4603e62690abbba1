package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Start main code and print the board versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBoard(cmd, runInfo)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(ctx context.Context, s *session) error {
	if err := s.board.EnterMainCode(ctx); err != nil {
		return fmt.Errorf("failed to switch to main code: %w", err)
	}

	hw, err := s.board.HardwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get hardware version: %w", err)
	}
	fw, err := s.board.FirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get firmware version: %w", err)
	}

	fmt.Println(field("Hardware version", hw))
	fmt.Println(field("Firmware version", fw))
	return nil
}
