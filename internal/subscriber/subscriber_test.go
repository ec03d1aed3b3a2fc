package subscriber

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestSubscriber(h Handler) *Subscriber {
	return New(Options{
		Broker:   "tcp://127.0.0.1:1",
		ClientID: "test",
		QoS:      1,
		Topics:   []string{"sensors/status", "measurement/data"},
	}, h)
}

func TestSubscriber_ErrorsAndPanicsDoNotStopProcessing(t *testing.T) {
	var calls atomic.Int32
	s := newTestSubscriber(func(topic string, payload []byte) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("malformed payload")
		case 2:
			panic("boom")
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		s.onMessage(nil, fakeMessage{topic: "measurement/data", payload: []byte(`{}`)})
	}

	assert.Equal(t, int32(3), calls.Load())
}

func TestSubscriber_SubscribesToConfiguredTopics(t *testing.T) {
	s := newTestSubscriber(func(string, []byte) error { return nil })

	assert.Equal(t, map[string]byte{"sensors/status": 1, "measurement/data": 1}, s.topics)
	assert.False(t, s.Connected())
}

func TestSubscriber_StopWaitsForInFlightMessage(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var handled atomic.Int32
	s := newTestSubscriber(func(string, []byte) error {
		handled.Add(1)
		close(started)
		<-release
		return nil
	})

	go s.onMessage(nil, fakeMessage{topic: "measurement/data"})
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(time.Second) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a message was still being processed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)

	s.onMessage(nil, fakeMessage{topic: "measurement/data"})
	assert.Equal(t, int32(1), handled.Load())
}

func TestSubscriber_StopGivesUpAfterTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	s := newTestSubscriber(func(string, []byte) error {
		close(started)
		<-release
		return nil
	})

	go s.onMessage(nil, fakeMessage{topic: "sensors/status"})
	<-started

	assert.ErrorIs(t, s.Stop(20*time.Millisecond), ErrStopTimeout)
}
