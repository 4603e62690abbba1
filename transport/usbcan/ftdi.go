package usbcan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"
)

// USB identifiers of the APOX USB-CAN board.
const (
	VendorID  gousb.ID = 0x0403
	ProductID gousb.ID = 0xF9B8
)

// FTDI vendor requests.
const (
	ftdiRequestReset      = 0x00
	ftdiRequestSetLatency = 0x09

	ftdiResetSIO     = 0
	ftdiPurgeRX      = 1
	ftdiPurgeTX      = 2
	ftdiLatencyMilli = 1

	// ftdiInterfaceA is the wIndex of the chip's first port.
	ftdiInterfaceA = 1

	// ftdiStatusSize is the modem status header on every IN packet.
	ftdiStatusSize = 2

	// Bulk endpoint numbers: OUT 0x02, IN 0x81.
	ftdiEndpointOut = 2
	ftdiEndpointIn  = 1
)

var ErrDeviceNotFound = errors.New("usb device not found")

// FTDIOpener opens the board directly through libusb. A zero vid or pid
// selects the APOX defaults.
func FTDIOpener(vid, pid gousb.ID) Opener {
	if vid == 0 {
		vid = VendorID
	}
	if pid == 0 {
		pid = ProductID
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		link, err := openFTDI(ctx, vid, pid)
		if err != nil {
			return nil, err
		}
		return link, nil
	}
}

type ftdiLink struct {
	usb     *gousb.Context
	dev     *gousb.Device
	release func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint

	ctx    context.Context
	cancel context.CancelFunc

	raw       []byte
	pending   []byte
	closeOnce sync.Once
}

func openFTDI(ctx context.Context, vid, pid gousb.ID) (_ *ftdiLink, err error) {
	usb := gousb.NewContext()
	defer func() {
		if err != nil {
			_ = usb.Close()
		}
	}()

	dev, err := usb.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("opening usb device %s:%s: %w", vid, pid, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %s:%s", ErrDeviceNotFound, vid, pid)
	}
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()

	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("enabling kernel driver auto-detach: %w", err)
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		return nil, fmt.Errorf("claiming interface: %w", err)
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	out, err := intf.OutEndpoint(ftdiEndpointOut)
	if err != nil {
		return nil, fmt.Errorf("opening OUT endpoint: %w", err)
	}
	in, err := intf.InEndpoint(ftdiEndpointIn)
	if err != nil {
		return nil, fmt.Errorf("opening IN endpoint: %w", err)
	}

	for _, req := range []struct {
		request uint8
		value   uint16
		what    string
	}{
		{ftdiRequestReset, ftdiResetSIO, "reset"},
		{ftdiRequestReset, ftdiPurgeRX, "purge rx"},
		{ftdiRequestReset, ftdiPurgeTX, "purge tx"},
		{ftdiRequestSetLatency, ftdiLatencyMilli, "set latency timer"},
	} {
		if _, err := dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice,
			req.request, req.value, ftdiInterfaceA, nil); err != nil {
			return nil, fmt.Errorf("ftdi %s: %w", req.what, err)
		}
	}

	linkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &ftdiLink{
		usb:     usb,
		dev:     dev,
		release: release,
		in:      in,
		out:     out,
		ctx:     linkCtx,
		cancel:  cancel,
		raw:     make([]byte, in.Desc.MaxPacketSize*32),
	}, nil
}

func (l *ftdiLink) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		n, err := l.in.ReadContext(l.ctx, l.raw)
		if err != nil {
			if l.ctx.Err() != nil {
				return 0, io.EOF
			}
			return 0, err
		}
		l.pending = stripModemStatus(l.raw[:n], l.in.Desc.MaxPacketSize)
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *ftdiLink) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

func (l *ftdiLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		l.release()
		err = errors.Join(l.dev.Close(), l.usb.Close())
	})
	return err
}

// stripModemStatus removes the two status bytes the FTDI chip puts at the
// start of every max-size USB packet.
func stripModemStatus(raw []byte, packetSize int) []byte {
	if packetSize <= ftdiStatusSize {
		return nil
	}
	out := make([]byte, 0, len(raw))
	for len(raw) > 0 {
		chunk := raw[:min(packetSize, len(raw))]
		raw = raw[len(chunk):]
		if len(chunk) > ftdiStatusSize {
			out = append(out, chunk[ftdiStatusSize:]...)
		}
	}
	return out
}
