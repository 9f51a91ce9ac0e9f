package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yogguru/trainer/internal/domain"
)

const publishTimeout = 2 * time.Second

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// publisher is the part of mqtt.Client the speaker needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT connects to the broker with automatic reconnects.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("MQTT connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	return client, nil
}

// MQTTSpeaker publishes speech commands for one user to a studio speaker.
type MQTTSpeaker struct {
	client publisher
	topic  string
	logger *slog.Logger
}

// NewMQTTSpeaker creates a speaker publishing to <prefix>/<user>/speech.
func NewMQTTSpeaker(client publisher, prefix, userID string, logger *slog.Logger) *MQTTSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSpeaker{
		client: client,
		topic:  Topic(prefix, userID),
		logger: logger,
	}
}

// Topic returns the speech topic for a user.
func Topic(prefix, userID string) string {
	return fmt.Sprintf("%s/%s/speech", prefix, userID)
}

func (s *MQTTSpeaker) Speak(text string, lang domain.Language) {
	s.publish(SpeakCommand(text, lang))
}

func (s *MQTTSpeaker) Cancel() {
	s.publish(CancelCommand())
}

// publish sends cmd at QoS 1 and reports failures in the background.
func (s *MQTTSpeaker) publish(cmd Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		s.logger.Warn("[SPEECH] Failed to marshal command", "error", err)
		return
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			s.logger.Warn("[SPEECH] Publish timeout", "topic", s.topic, "action", cmd.Action)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warn("[SPEECH] Publish failed", "error", err, "topic", s.topic, "action", cmd.Action)
		}
	}()
}
