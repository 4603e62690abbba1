package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kabili207/apoxcan-go/core/codec"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	extStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

// formatCAN renders one received CAN message on a single line.
func formatCAN(msg codec.CANMessage) string {
	var id string
	if msg.Extended {
		id = extStyle.Render(fmt.Sprintf("%08X", msg.ID))
	} else {
		id = fmt.Sprintf("     %03X", msg.ID)
	}

	var data string
	if msg.RTR {
		data = dimStyle.Render("remote request")
	} else {
		data = formatData(msg.Data)
	}

	return fmt.Sprintf("%s  %s  [%d]  %s",
		dimStyle.Render(fmt.Sprintf("%10d", msg.Timestamp)),
		id,
		len(msg.Data),
		data)
}

func formatData(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
