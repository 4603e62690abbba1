package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kabili207/apoxcan-go/core/firmware"
)

var (
	uploadStrict   bool
	uploadCapacity int
	uploadForce    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload an Intel HEX firmware image",
	Long: `Upload an Intel HEX firmware image through the bootloader.

The file is parsed before anything is sent. Windows of the image that are
entirely erased (0xFF) are skipped. The board must be running its bootloader;
use --force to send anyway.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []firmware.ParseOption
		if uploadStrict {
			opts = append(opts, firmware.Strict())
		}
		img, err := firmware.ParseHexFile(args[0], uploadCapacity, opts...)
		if err != nil {
			return err
		}
		fmt.Println(field("Image", fmt.Sprintf("%s (%d bytes, blake2b %s)", args[0], img.Capacity(), img.Digest()[:16])))

		return withBoard(cmd, func(ctx context.Context, s *session) error {
			running, err := s.board.MainCodeRunning(ctx)
			if err != nil {
				return fmt.Errorf("failed to query running code: %w", err)
			}
			if running && !uploadForce {
				return errors.New("board is running main code, not the bootloader (use --force to upload anyway)")
			}

			stats, err := s.board.UploadFirmware(ctx, img, firmware.WithProgress(progressPrinter()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			fmt.Println(field("Uploaded", fmt.Sprintf("%d packets, %d windows skipped, %d bytes in %s",
				stats.Packets, stats.Skipped, stats.Bytes, stats.Elapsed.Round(time.Millisecond))))
			return nil
		})
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadStrict, "strict", false, "Reject malformed records and bad checksums")
	uploadCmd.Flags().IntVar(&uploadCapacity, "capacity", firmware.DefaultCapacity, "Flash size in bytes")
	uploadCmd.Flags().BoolVar(&uploadForce, "force", false, "Upload even if main code is running")
	rootCmd.AddCommand(uploadCmd)
}

// progressPrinter redraws a one-line progress indicator when stderr is a
// terminal.
func progressPrinter() func(firmware.Progress) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(p firmware.Progress) {
		if p.Window%16 != 0 && p.Window != p.Windows {
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s %3d%%  sent %d  skipped %d",
			labelStyle.Render("Uploading"), p.Window*100/p.Windows, p.Sent, p.Skipped)
	}
}
