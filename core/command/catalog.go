// Package command lists the one-byte opcodes understood by the APOX USB-CAN
// board firmware.
//
// Not every opcode is used by this module; the full table is kept so callers
// can issue any board command through the exchange engine.
package command

import "fmt"

// Opcode identifies a board command. The board echoes the low 7 bits of the
// opcode in its response.
type Opcode uint8

// ResponseMask selects the bits of an opcode that the board echoes back.
const ResponseMask Opcode = 0x7F

// Board configuration commands.
const (
	WhichCodeIsRunning Opcode = 0x00
	ResetCPU           Opcode = 0x01
	GetTxErrCount      Opcode = 0x02
	GetRxErrCount      Opcode = 0x03
	GetCANStat         Opcode = 0x04
	GetComStat         Opcode = 0x05
	GetMsgFilter1      Opcode = 0x06
	GetMsgFilter2      Opcode = 0x07
	SetMsgFilter1      Opcode = 0x08
	SetMsgFilter2      Opcode = 0x09
	IsRcvBufferEmpty   Opcode = 0x0A
	IsTxBufferEmpty    Opcode = 0x0B
	IsTxPending        Opcode = 0x0C
	GetCANCon          Opcode = 0x0D
	GetCIOCon          Opcode = 0x0E
	SetSyncCount       Opcode = 0x10
	SetSyncMsg         Opcode = 0x11
	TurnSyncOn         Opcode = 0x12
	TurnSyncOff        Opcode = 0x13
	SetConfigMode      Opcode = 0x20
	SetLoopbackMode    Opcode = 0x21
	SetNormalMode      Opcode = 0x22
	SetSleepMode       Opcode = 0x23
	SetListenMode      Opcode = 0x24
	AbortAllTx         Opcode = 0x26
	SetBaud1M          Opcode = 0x30
	SetBaud500K        Opcode = 0x31
	SetBaud250K        Opcode = 0x32
	SetBaud125K        Opcode = 0x33
	GetBaudRegs        Opcode = 0x34
	ResetMicro         Opcode = 0x42
	GetHardwareVersion Opcode = 0x43
	GetFirmwareVersion Opcode = 0x44
)

// Bootloader commands.
const (
	// StartDownload ('S') opens a firmware transfer.
	StartDownload Opcode = 0x53
	// EndDownload ('E') closes a firmware transfer.
	EndDownload Opcode = 0x45
	// RunMainCode ('R') asks the bootloader to jump to the main firmware.
	RunMainCode Opcode = 0x52
)

var names = map[Opcode]string{
	WhichCodeIsRunning: "WHICH_CODE_IS_RUNNING",
	ResetCPU:           "RESET_CPU",
	GetTxErrCount:      "GET_TX_ERR_CNT",
	GetRxErrCount:      "GET_RX_ERR_CNT",
	GetCANStat:         "GET_CANSTAT",
	GetComStat:         "GET_COMSTAT",
	GetMsgFilter1:      "GET_MSGFILTER1",
	GetMsgFilter2:      "GET_MSGFILTER2",
	SetMsgFilter1:      "SET_MSGFILTER1",
	SetMsgFilter2:      "SET_MSGFILTER2",
	IsRcvBufferEmpty:   "IS_RCV_BUFFER_EMPTY",
	IsTxBufferEmpty:    "IS_TX_BUFFER_EMPTY",
	IsTxPending:        "IS_TX_PENDING",
	GetCANCon:          "GET_CANCON",
	GetCIOCon:          "GET_CIOCON",
	SetSyncCount:       "SET_SYNC_COUNT",
	SetSyncMsg:         "SET_SYNC_MSG",
	TurnSyncOn:         "TURN_SYNC_ON",
	TurnSyncOff:        "TURN_SYNC_OFF",
	SetConfigMode:      "SET_CONFIG_MODE",
	SetLoopbackMode:    "SET_LOOPBACK_MODE",
	SetNormalMode:      "SET_NORMAL_MODE",
	SetSleepMode:       "SET_SLEEP_MODE",
	SetListenMode:      "SET_LISTEN_MODE",
	AbortAllTx:         "ABORT_ALL_TX",
	SetBaud1M:          "SET_BAUD_1MEG",
	SetBaud500K:        "SET_BAUD_500K",
	SetBaud250K:        "SET_BAUD_250K",
	SetBaud125K:        "SET_BAUD_125K",
	GetBaudRegs:        "GET_BAUD_REGS",
	ResetMicro:         "RESET_MICRO",
	GetHardwareVersion: "GET_HARDWARE_VERSION",
	GetFirmwareVersion: "GET_FIRMWARE_VERSION",
	StartDownload:      "USB_START_DOWNLOAD",
	EndDownload:        "USB_END_DOWNLOAD",
	RunMainCode:        "RUN_MAIN_CODE",
}

// String returns the catalog name of the opcode, or its hex value if the
// opcode is not listed.
func (o Opcode) String() string {
	if name, ok := names[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint8(o))
}

// Echo returns the command byte a successful response carries for o.
func (o Opcode) Echo() uint8 {
	return uint8(o & ResponseMask)
}

// Lookup returns the opcode registered under name.
func Lookup(name string) (Opcode, bool) {
	for op, n := range names {
		if n == name {
			return op, true
		}
	}
	return 0, false
}
