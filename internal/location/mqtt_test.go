package location

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mqtt.Client
	subscribed string
	handler    mqtt.MessageHandler
	subErr     error
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.subscribed = topic
	c.handler = cb
	return &fakeToken{err: c.subErr}
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token {
	return &fakeToken{}
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type feedMap map[string]*Feed

func (m feedMap) Feed(userID string) (*Feed, bool) {
	f, ok := m[userID]
	return f, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMQTTBridge_Subscribes(t *testing.T) {
	client := &fakeClient{}
	b := NewMQTTBridge(client, feedMap{}, discardLogger())
	require.NoError(t, b.Start())
	assert.Equal(t, LocationTopic, client.subscribed)
	b.Stop()

	client.subErr = errors.New("not connected")
	assert.Error(t, b.Start())
}

func TestMQTTBridge_RoutesFixToFeed(t *testing.T) {
	now := time.Now()
	feed := NewFeed(30 * time.Second)
	client := &fakeClient{}
	b := NewMQTTBridge(client, feedMap{"u-1": feed}, discardLogger())
	require.NoError(t, b.Start())

	payload := []byte(`{"latitude":-6.2,"longitude":106.8,"accuracy":4,"timestamp":` +
		strconv.FormatInt(now.UnixMilli(), 10) + `}`)
	client.handler(client, &fakeMessage{topic: "arrival/users/u-1/location", payload: payload})

	fix, ok := feed.Latest()
	require.True(t, ok)
	assert.Equal(t, -6.2, fix.Latitude)
	assert.Equal(t, now.UnixMilli(), fix.CapturedAt.UnixMilli())
}

func TestMQTTBridge_RoutesErrorToFeed(t *testing.T) {
	feed := NewFeed(30 * time.Second)
	client := &fakeClient{}
	b := NewMQTTBridge(client, feedMap{"u-1": feed}, discardLogger())
	require.NoError(t, b.Start())

	client.handler(client, &fakeMessage{
		topic:   "arrival/users/u-1/location",
		payload: []byte(`{"error":"permission_denied"}`),
	})

	_, err := feed.CurrentFix(context.Background(), 10*time.Millisecond, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestMQTTBridge_DropsBadMessages(t *testing.T) {
	feed := NewFeed(30 * time.Second)
	client := &fakeClient{}
	b := NewMQTTBridge(client, feedMap{"u-1": feed}, discardLogger())
	require.NoError(t, b.Start())

	msgs := []*fakeMessage{
		{topic: "arrival/users/u-1/location", payload: []byte(`not json`)},
		{topic: "arrival/users/u-1/location", payload: []byte(`{"latitude":95,"longitude":0,"timestamp":1}`)},
		{topic: "arrival/users/u-1/location", payload: []byte(`{"latitude":1,"longitude":0,"timestamp":0}`)},
		{topic: "arrival/users/u-1/location", payload: []byte(`{"latitude":1,"longitude":0,"timestamp":` +
			strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10) + `}`)},
		{topic: "arrival/users/u-2/location", payload: []byte(`{"latitude":1,"longitude":0,"timestamp":1}`)},
		{topic: "arrival/other", payload: []byte(`{}`)},
	}
	for _, m := range msgs {
		client.handler(client, m)
	}

	_, ok := feed.Latest()
	assert.False(t, ok)
}

func TestReport_ToFix(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		report  Report
		wantErr string
	}{
		{"valid", Report{Latitude: 1, Longitude: 2, Timestamp: now.UnixMilli()}, ""},
		{"within skew", Report{Latitude: 1, Longitude: 2, Timestamp: now.Add(MaxClockSkew).UnixMilli()}, ""},
		{"future", Report{Latitude: 1, Longitude: 2, Timestamp: now.Add(time.Hour).UnixMilli()}, "timestamp"},
		{"negative accuracy", Report{Latitude: 1, Longitude: 2, Accuracy: -1, Timestamp: now.UnixMilli()}, "accuracy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix, err := tt.report.ToFix(now)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.report.Timestamp, fix.CapturedAt.UnixMilli())
		})
	}
}

func TestUserFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
		ok    bool
	}{
		{"arrival/users/abc/location", "abc", true},
		{"arrival/users//location", "", false},
		{"arrival/users/abc/decision", "", false},
		{"/arrival/users/abc/location", "", false},
	}
	for _, tt := range tests {
		got, ok := userFromTopic(tt.topic)
		assert.Equal(t, tt.ok, ok, tt.topic)
		assert.Equal(t, tt.want, got, tt.topic)
	}
}
