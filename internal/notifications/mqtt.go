package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DecisionTopic returns the per-user topic the device listens on.
func DecisionTopic(userID string) string {
	return "arrival/users/" + userID + "/decision"
}

// MQTTSink pushes decisions straight back to the user's device.
type MQTTSink struct {
	client mqtt.Client
	qos    byte
}

func NewMQTTSink(client mqtt.Client) *MQTTSink {
	return &MQTTSink{client: client, qos: 1}
}

func (s *MQTTSink) Send(ctx context.Context, d Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	token := s.client.Publish(DecisionTopic(d.UserID), s.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}
