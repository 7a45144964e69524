package location

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// LocationTopic is the subscription pattern for device-reported fixes.
// The wildcard segment is the user ID.
const LocationTopic = "arrival/users/+/location"

// FeedLookup resolves the feed of a user with a running session.
type FeedLookup interface {
	Feed(userID string) (*Feed, bool)
}

// Report is the message a device sends for one location reading, over MQTT
// or HTTP. Error carries a failure reason instead of a fix.
type Report struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Error     string  `json:"error,omitempty"`
}

// MQTTBridge forwards device messages from the broker into session feeds.
type MQTTBridge struct {
	client mqtt.Client
	feeds  FeedLookup
	logger *slog.Logger
}

func NewMQTTBridge(client mqtt.Client, feeds FeedLookup, logger *slog.Logger) *MQTTBridge {
	return &MQTTBridge{client: client, feeds: feeds, logger: logger}
}

// Start subscribes to LocationTopic.
func (b *MQTTBridge) Start() error {
	token := b.client.Subscribe(LocationTopic, 1, b.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", LocationTopic, err)
	}
	b.logger.Info("MQTT location bridge subscribed", "topic", LocationTopic)
	return nil
}

// Stop unsubscribes from LocationTopic.
func (b *MQTTBridge) Stop() {
	token := b.client.Unsubscribe(LocationTopic)
	if !token.WaitTimeout(5 * time.Second) {
		b.logger.Warn("MQTT unsubscribe timed out", "topic", LocationTopic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Warn("MQTT unsubscribe failed", "error", err)
	}
}

func (b *MQTTBridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	userID, ok := userFromTopic(msg.Topic())
	if !ok {
		b.logger.Warn("Unexpected location topic", "topic", msg.Topic())
		return
	}

	var raw Report
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		b.logger.Warn("Invalid location message", "user_id", userID, "error", err)
		return
	}

	feed, ok := b.feeds.Feed(userID)
	if !ok {
		b.logger.Debug("Location for user without session", "user_id", userID)
		return
	}

	if raw.Error != "" {
		reason, err := ParseReason(raw.Error)
		if err != nil {
			b.logger.Warn("Invalid location error", "user_id", userID, "error", err)
			return
		}
		feed.Fail(Unavailable(reason, nil))
		return
	}

	fix, err := raw.ToFix(time.Now())
	if err != nil {
		b.logger.Warn("Location validation error", "user_id", userID, "error", err)
		return
	}
	if err := feed.Push(fix); err != nil {
		b.logger.Warn("Location fix refused", "user_id", userID, "error", err)
	}
}

// ToFix validates the reading against the receiver's clock now and converts
// it into a Fix.
func (m Report) ToFix(now time.Time) (Fix, error) {
	if m.Latitude < -90 || m.Latitude > 90 {
		return Fix{}, fmt.Errorf("latitude: must be between -90 and 90")
	}
	if m.Longitude < -180 || m.Longitude > 180 {
		return Fix{}, fmt.Errorf("longitude: must be between -180 and 180")
	}
	if m.Timestamp <= 0 {
		return Fix{}, fmt.Errorf("timestamp: must be positive")
	}
	if m.Accuracy < 0 {
		return Fix{}, fmt.Errorf("accuracy: must not be negative")
	}
	captured := time.UnixMilli(m.Timestamp)
	if captured.Sub(now) > MaxClockSkew {
		return Fix{}, fmt.Errorf("timestamp: %s ahead of server clock", captured.Sub(now).Round(time.Second))
	}
	return Fix{
		Latitude:       m.Latitude,
		Longitude:      m.Longitude,
		AccuracyMeters: m.Accuracy,
		CapturedAt:     captured,
	}, nil
}

// userFromTopic extracts the user ID from arrival/users/{id}/location.
func userFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "arrival" || parts[1] != "users" || parts[3] != "location" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
