package usbcan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the default baud rate for the board's virtual COM port.
const DefaultBaudRate = 115200

// SerialOpener opens the board through the FTDI virtual COM port driver.
func SerialOpener(port string, baudRate int) Opener {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return func(_ context.Context) (io.ReadWriteCloser, error) {
		if port == "" {
			return nil, errors.New("serial port is required")
		}

		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}

		p, err := serial.Open(port, mode)
		if err != nil {
			return nil, fmt.Errorf("opening serial port %s: %w", port, err)
		}

		// Drop anything the board queued before we attached.
		if err := p.ResetInputBuffer(); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("purging serial port %s: %w", port, err)
		}
		return p, nil
	}
}

// ListSerialPorts returns the serial ports present on the system.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
