package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kabili207/apoxcan-go/device/keepalive"
	"github.com/kabili207/apoxcan-go/transport/mqtt"
)

var (
	bridgeBroker   string
	bridgeBus      string
	bridgePrefix   string
	bridgeUsername string
	bridgeTLS      bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Relay CAN traffic to and from an MQTT broker",
	Long: `Relay CAN traffic between the board and an MQTT broker.

Received frames are published CBOR-encoded to PREFIX/BUS/rx. Frames published
to PREFIX/BUS/tx are sent on the bus. The broker password is read from
APOXCAN_MQTT_PASSWORD when --mqtt-username is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBoard(cmd, runBridge)
	},
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeBroker, "broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	bridgeCmd.Flags().StringVar(&bridgeBus, "bus", mqtt.DefaultBus, "Bus name used in topics")
	bridgeCmd.Flags().StringVar(&bridgePrefix, "prefix", mqtt.DefaultTopicPrefix, "Topic prefix")
	bridgeCmd.Flags().StringVar(&bridgeUsername, "mqtt-username", "", "MQTT username")
	bridgeCmd.Flags().BoolVar(&bridgeTLS, "mqtt-tls", false, "Use TLS for the broker connection")
	_ = bridgeCmd.MarkFlagRequired("broker")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(ctx context.Context, s *session) error {
	if err := s.board.EnterMainCode(ctx); err != nil {
		return fmt.Errorf("failed to switch to main code: %w", err)
	}

	b := mqtt.New(s.transport, mqtt.Config{
		Broker:      bridgeBroker,
		Username:    bridgeUsername,
		Password:    os.Getenv("APOXCAN_MQTT_PASSWORD"),
		UseTLS:      bridgeTLS,
		TopicPrefix: bridgePrefix,
		Bus:         bridgeBus,
		Logger:      slog.Default(),
	})
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = b.Stop() }()

	mon := keepalive.New(s.board, keepalive.Config{Logger: slog.Default()})
	mon.SetOnLost(func(err error) {
		slog.Error("board stopped responding", "error", err)
	})
	go mon.Start(ctx)

	fmt.Fprintln(os.Stderr, field("Bridging", fmt.Sprintf("%s <-> %s", b.RxTopic(), b.TxTopic())))
	<-ctx.Done()

	st := b.Stats()
	fmt.Fprintln(os.Stderr, field("Relayed", fmt.Sprintf("%d published, %d forwarded, %d dropped",
		st.Published, st.Forwarded, st.Dropped)))
	return nil
}
