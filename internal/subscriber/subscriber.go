// Package subscriber owns the MQTT connection of the ingestor. It reconnects
// forever after the first successful connect, re-subscribes on every connect,
// and never lets a single bad message stop the flow.
package subscriber

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

var ErrStopTimeout = errors.New("timed out waiting for in-flight message")

// Handler processes one message. Returned errors are logged, not retried.
type Handler func(topic string, payload []byte) error

type Options struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	QoS                  byte
	MaxReconnectInterval time.Duration
	Topics               []string
}

type Subscriber struct {
	client  mqtt.Client
	handler Handler
	topics  map[string]byte

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func New(o Options, h Handler) *Subscriber {
	s := &Subscriber{handler: h, topics: make(map[string]byte, len(o.Topics))}
	for _, t := range o.Topics {
		s.topics[t] = o.QoS
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			log.Info().Str("broker", o.Broker).Msg("mqtt reconnecting")
		})
	if o.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(o.MaxReconnectInterval)
	}
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects once; failing to reach the broker here is returned to the caller.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

func (s *Subscriber) Connected() bool { return s.client.IsConnectionOpen() }

func (s *Subscriber) onConnect(c mqtt.Client) {
	token := c.SubscribeMultiple(s.topics, s.onMessage)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Msg("mqtt subscribe failed")
		return
	}
	for t := range s.topics {
		log.Info().Str("topic", t).Msg("subscribed")
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.process(msg.Topic(), msg.Payload())
}

func (s *Subscriber) process(topic string, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("topic", topic).Interface("panic", p).Msg("message handler panicked")
		}
	}()
	if err := s.handler(topic, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Int("bytes", len(payload)).Msg("message rejected")
	}
}

// Stop unsubscribes, waits up to timeout for the message being processed, then disconnects.
func (s *Subscriber) Stop(timeout time.Duration) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	if s.client.IsConnectionOpen() {
		if token := s.client.Unsubscribe(topics...); !token.WaitTimeout(timeout) {
			log.Warn().Msg("mqtt unsubscribe timed out")
		}
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = ErrStopTimeout
	}
	s.client.Disconnect(250)
	return err
}
