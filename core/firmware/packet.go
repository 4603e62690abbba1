package firmware

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PacketDataSize is the number of image bytes carried by one write packet.
	PacketDataSize = 64

	// PacketSize is the encoded size of a write packet: 2-byte word address + data.
	PacketSize = 2 + PacketDataSize

	// MaxPacketCapacity is the largest image addressable by the 16-bit word address.
	MaxPacketCapacity = 0x10000
)

var ErrImageTooLarge = errors.New("image too large for 16-bit packet addressing")

// WritePacket carries one 64-byte window of the image.
type WritePacket struct {
	WordAddress uint16
	Data        [PacketDataSize]byte
}

// Bytes encodes the packet: address low byte, address high byte, 64 data bytes.
func (p WritePacket) Bytes() []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint16(buf, p.WordAddress)
	copy(buf[2:], p.Data[:])
	return buf
}

func (p WritePacket) String() string {
	return fmt.Sprintf("WritePacket{addr=0x%04X}", p.WordAddress)
}

// Window is one 64-byte slice of the image with its start address. Erased
// windows carry no packet.
type Window struct {
	Address int
	Erased  bool
	Packet  WritePacket
}

// Windows walks the image in 64-byte steps from address 0. A final partial
// window is padded with ErasedValue.
func (img *Image) Windows() ([]Window, error) {
	if img.Capacity() > MaxPacketCapacity {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, img.Capacity())
	}

	windows := make([]Window, 0, (img.Capacity()+PacketDataSize-1)/PacketDataSize)
	for addr := 0; addr < img.Capacity(); addr += PacketDataSize {
		end := min(addr+PacketDataSize, img.Capacity())
		chunk := img.data[addr:end]

		w := Window{Address: addr, Erased: isErased(chunk)}
		if !w.Erased {
			w.Packet.WordAddress = uint16(addr)
			n := copy(w.Packet.Data[:], chunk)
			for i := n; i < PacketDataSize; i++ {
				w.Packet.Data[i] = ErasedValue
			}
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// Packets returns the write packets for every window that holds at least
// one programmed byte, in ascending address order.
func (img *Image) Packets() ([]WritePacket, error) {
	windows, err := img.Windows()
	if err != nil {
		return nil, err
	}
	var packets []WritePacket
	for _, w := range windows {
		if !w.Erased {
			packets = append(packets, w.Packet)
		}
	}
	return packets, nil
}
