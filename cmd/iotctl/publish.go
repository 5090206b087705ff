package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/telemetry"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
	"github.com/spf13/cobra"
)

// publishCmd sends one sensor message to devices/{id}/sensors
func publishCmd() *cobra.Command {
	var (
		broker     string
		deviceID   string
		sensorType string
		readings   []string
		qos        int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a sensor message over MQTT",
		Example: `  iotctl publish --device dev-1 --sensor mq4 --reading gas=62
  iotctl publish --device dev-1 --sensor dht22 --reading temperature=27.5 --reading humidity=40`,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildMessage(sensorType, readings, time.Now())
			if err != nil {
				return err
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}

			opts := mqtt.NewClientOptions().
				AddBroker(broker).
				SetClientID(fmt.Sprintf("iotctl-%d", time.Now().UnixNano())).
				SetConnectTimeout(5 * time.Second)
			client := mqtt.NewClient(opts)

			if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
				return fmt.Errorf("failed to connect to %s: %v", broker, token.Error())
			}
			defer client.Disconnect(250)

			topic := fmt.Sprintf("devices/%s/sensors", deviceID)
			token := client.Publish(topic, byte(qos), false, payload)
			if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
				return fmt.Errorf("failed to publish to %s: %v", topic, token.Error())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published to %s: %s\n", topic, payload)
			return nil
		},
	}

	defaultBroker := "tcp://localhost:1883"
	if cfg, err := config.Load(); err == nil {
		defaultBroker = cfg.MQTT.BrokerURL
	}

	cmd.Flags().StringVar(&broker, "broker", defaultBroker, "MQTT broker URL")
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Device id")
	cmd.Flags().StringVarP(&sensorType, "sensor", "s", "", "Sensor type (e.g. mq4, dht22)")
	cmd.Flags().StringArrayVarP(&readings, "reading", "r", nil, "Reading as metric=value; repeat for a batch")
	cmd.Flags().IntVar(&qos, "qos", 1, "MQTT QoS")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("sensor")
	_ = cmd.MarkFlagRequired("reading")

	return cmd
}

// buildMessage turns metric=value pairs into a single message, or a batch
// when more than one pair is given
func buildMessage(sensorType string, pairs []string, now time.Time) (telemetry.Message, error) {
	if len(pairs) == 0 {
		return telemetry.Message{}, fmt.Errorf("at least one --reading is required")
	}

	ts := timeparser.FormatISO(now)
	raw := make([]telemetry.RawReading, 0, len(pairs))
	for _, pair := range pairs {
		metric, value, ok := strings.Cut(pair, "=")
		if !ok || metric == "" {
			return telemetry.Message{}, fmt.Errorf("reading %q must be metric=value", pair)
		}
		var v telemetry.Value
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return telemetry.Message{}, fmt.Errorf("reading %q: value must be a number or true/false", pair)
		}
		raw = append(raw, telemetry.RawReading{Metric: metric, Value: v, Timestamp: ts})
	}

	if len(raw) == 1 {
		return telemetry.NewSingleMessage(telemetry.Single{
			SensorType: sensorType,
			Metric:     raw[0].Metric,
			Value:      raw[0].Value,
			Timestamp:  raw[0].Timestamp,
		}), nil
	}
	return telemetry.NewBatchMessage(telemetry.Batch{SensorType: sensorType, Readings: raw}), nil
}
