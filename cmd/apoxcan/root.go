package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// Direct USB flags
	usbID string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	verbose   bool
	logFormat string

	// Request flags
	requestTimeout int
)

var rootCmd = &cobra.Command{
	Use:   "apoxcan",
	Short: "APOX USB-CAN board tool",
	Long: `apoxcan - query, monitor and program APOX USB-CAN boards.

Connection modes:
  USB (default): talks to the FTDI chip directly via libusb [--usb 0403:f9b8]
  Serial:        --port /dev/ttyUSB0 [--baud 115200]
  WebSocket:     --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the APOXCAN_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(os.Stderr, logFormat, verbose)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// Direct USB flags
	rootCmd.PersistentFlags().StringVar(&usbID, "usb", "", "USB VID:PID of the board (default 0403:f9b8)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.PersistentFlags().IntVar(&requestTimeout, "timeout", 1000, "Board response timeout in milliseconds")
}
