// Command apoxcan drives an APOX USB-CAN board: query it, watch and send CAN
// traffic, upload firmware, and bridge the bus to MQTT.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
