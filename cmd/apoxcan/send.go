package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kabili207/apoxcan-go/core/codec"
)

var (
	sendRTR      bool
	sendStandard bool
	sendFlags    uint8
)

var sendCmd = &cobra.Command{
	Use:   "send ID [DATA]",
	Short: "Send one CAN frame",
	Long: `Send one CAN frame. ID and DATA are hex; DATA may contain spaces
or colons between bytes (e.g. "DE AD BE EF" or DE:AD:BE:EF).

Frames use 29-bit identifiers unless --std is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseFrame(args, sendRTR, !sendStandard)
		if err != nil {
			return err
		}
		frame.Flags = sendFlags
		return withBoard(cmd, func(ctx context.Context, s *session) error {
			if err := s.board.EnterMainCode(ctx); err != nil {
				return fmt.Errorf("failed to switch to main code: %w", err)
			}
			if err := s.board.SendCANMessage(frame); err != nil {
				return err
			}
			fmt.Println(field("Sent", fmt.Sprintf("0x%X [%d] %s", frame.ID, len(frame.Data), formatData(frame.Data))))
			return nil
		})
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendRTR, "rtr", false, "Send a remote transmission request")
	sendCmd.Flags().BoolVar(&sendStandard, "std", false, "Use an 11-bit identifier")
	sendCmd.Flags().Uint8Var(&sendFlags, "flags", 0, "Board TX flags byte")
	rootCmd.AddCommand(sendCmd)
}

// parseFrame builds a frame from the ID and optional DATA arguments.
func parseFrame(args []string, rtr, extended bool) (codec.CANFrame, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(args[0]), "0x"), 16, 32)
	if err != nil {
		return codec.CANFrame{}, fmt.Errorf("invalid CAN id %q: %w", args[0], err)
	}
	limit := uint64(0x7FF)
	if extended {
		limit = codec.MaxExtendedID
	}
	if id > limit {
		return codec.CANFrame{}, fmt.Errorf("CAN id 0x%X exceeds 0x%X", id, limit)
	}

	frame := codec.CANFrame{ID: uint32(id), RTR: rtr, Extended: extended}
	if len(args) < 2 {
		return frame, nil
	}

	clean := strings.NewReplacer(" ", "", ":", "").Replace(args[1])
	data, err := hex.DecodeString(clean)
	if err != nil {
		return codec.CANFrame{}, fmt.Errorf("invalid data %q: %w", args[1], err)
	}
	if len(data) > codec.MaxCANData {
		return codec.CANFrame{}, fmt.Errorf("data is %d bytes, at most %d allowed", len(data), codec.MaxCANData)
	}
	frame.Data = data
	return frame, nil
}
