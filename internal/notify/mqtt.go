package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig controls the optional MQTT notification sink.
type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// MQTTSink publishes notifications as JSON to a single MQTT topic so a ground
// station can subscribe to failsafe activity.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

type mqttMessage struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
	AtUTC    string `json:"at_utc"`
}

func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "deadreckon-notifier"
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "deadreckon/notify"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("notify mqtt connected broker=%s topic=%s", cfg.Broker, topic)
	return &MQTTSink{client: client, topic: topic}, nil
}

// Func returns the sink as a notification Func. Publishes are fire-and-forget
// at QoS 0; a failsafe tick must never wait on the broker.
func (s *MQTTSink) Func() Func {
	return func(sev Severity, text string) {
		msg := mqttMessage{
			Severity: sev.String(),
			Text:     text,
			AtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return
		}
		s.client.Publish(s.topic, 0, false, b)
	}
}

func (s *MQTTSink) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Disconnect(250)
}
