package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

// fakeMQTTClient records publishes and can fail the first n of them.
type fakeMQTTClient struct {
	mu        sync.Mutex
	published []publishedMsg
	failFirst int
}

type publishedMsg struct {
	topic   string
	qos     int
	payload []byte
}

func (c *fakeMQTTClient) Start(context.Context) error           { return nil }
func (c *fakeMQTTClient) Disconnect(context.Context)            {}
func (c *fakeMQTTClient) AwaitConnection(context.Context) error { return nil }
func (c *fakeMQTTClient) Unsubscribe(context.Context, string) error {
	return nil
}
func (c *fakeMQTTClient) Subscribe(context.Context, string, int, mqtt.MessageHandler) error {
	return nil
}

func (c *fakeMQTTClient) Publish(_ context.Context, topic string, qos int, _ bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFirst > 0 {
		c.failFirst--
		return fmt.Errorf("broker unavailable")
	}
	c.published = append(c.published, publishedMsg{topic: topic, qos: qos, payload: payload})
	return nil
}

func (c *fakeMQTTClient) messages() []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedMsg(nil), c.published...)
}

func TestMQTTPublishesPerChannelTopics(t *testing.T) {
	client := &fakeMQTTClient{}
	n := NewMQTT(client, topic.NewBuilder("guardian/v1"), time.Second, nil)

	require.NoError(t, n.Publish(context.Background(), triage.EmergencyAlert("VIN-1", triage.CodeRed(triage.ReasonAirbag))))
	require.NoError(t, n.Publish(context.Background(), triage.WarningAlert("VIN-2", "http://x/dismiss")))

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "guardian/v1/alerts/emergency/VIN-1", msgs[0].topic)
	assert.Equal(t, "guardian/v1/alerts/warning/VIN-2", msgs[1].topic)

	var got triage.Alert
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, triage.ChannelEmergency, got.Channel)
	assert.Contains(t, got.Body, "CODE RED")
}

func TestWebhookDelivery(t *testing.T) {
	var received triage.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	err := n.Publish(context.Background(), triage.EmergencyAlert("VIN-1", "test"))
	require.NoError(t, err)
	assert.Equal(t, "VIN-1", received.VIN)
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	err := n.Publish(context.Background(), triage.EmergencyAlert("VIN-1", "test"))
	assert.Error(t, err)
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	client := &fakeMQTTClient{failFirst: 2}
	inner := NewMQTT(client, topic.NewBuilder("guardian/v1"), time.Second, nil)
	n := NewRetry(inner, 4, time.Millisecond, nil, nil)

	err := n.Publish(context.Background(), triage.EmergencyAlert("VIN-1", "test"))
	require.NoError(t, err)
	assert.Len(t, client.messages(), 1)
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	client := &fakeMQTTClient{failFirst: 10}
	inner := NewMQTT(client, topic.NewBuilder("guardian/v1"), time.Second, nil)
	n := NewRetry(inner, 2, time.Millisecond, nil, nil)

	err := n.Publish(context.Background(), triage.EmergencyAlert("VIN-1", "test"))
	assert.Error(t, err)
	assert.Empty(t, client.messages())
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	good := &fakeMQTTClient{}
	bad := &fakeMQTTClient{failFirst: 100}
	builder := topic.NewBuilder("guardian/v1")

	n := NewMulti(
		NewMQTT(good, builder, time.Second, nil),
		nil,
		NewMQTT(bad, builder, time.Second, nil),
	)

	err := n.Publish(context.Background(), triage.WarningAlert("VIN-1", "http://x/dismiss"))
	assert.Error(t, err)
	assert.Len(t, good.messages(), 1, "healthy target still receives the alert")
}
