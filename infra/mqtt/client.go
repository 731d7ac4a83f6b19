// Package mqtt publishes control decisions to an MQTT broker and reads
// battery telemetry from it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/eosbridge/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Handler receives messages of a subscription.
type Handler func(topic string, payload []byte)

type subscription struct {
	qos     byte
	handler Handler
}

// PahoClient wraps Eclipse Paho with retries, acknowledgment tracking and
// subscriptions that survive reconnects.
type PahoClient struct {
	cli pahoClient
	cfg Config

	mu       sync.Mutex
	ackChans map[string]chan struct{}
	subs     map[string]subscription
	logger   logger.Logger
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker. The availability topic is set to
// online on every connect and the ack topic is subscribed when acknowledgments
// are enabled.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:      cfg,
		ackChans: make(map[string]chan struct{}),
		subs:     make(map[string]subscription),
		logger:   log,
	}
	if cfg.AckTimeoutMS > 0 {
		pc.subs[cfg.Topic("control/ack")] = subscription{qos: cfg.qos("ack"), handler: pc.onAck}
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if cfg.LWTTopic != "" {
			c.Publish(cfg.LWTTopic, cfg.LWTQoS, cfg.LWTRetain, "online")
		}
		pc.mu.Lock()
		subs := make(map[string]subscription, len(pc.subs))
		for t, s := range pc.subs {
			subs[t] = s
		}
		pc.mu.Unlock()
		for topic, s := range subs {
			if token := c.Subscribe(topic, s.qos, wrap(s.handler)); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", topic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) { h(m.Topic(), m.Payload()) }
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// Config returns the normalized configuration.
func (p *PahoClient) Config() Config { return p.cfg }

// Publish sends payload to topic with the QoS of class, retrying with
// exponential backoff.
func (p *PahoClient) Publish(class, topic string, payload []byte, retained bool) error {
	if p.cli == nil {
		return ErrNotConnected
	}
	qos := p.cfg.qos(class)
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Subscribe registers h for topic. The subscription is restored after
// reconnects.
func (p *PahoClient) Subscribe(class, topic string, h Handler) error {
	s := subscription{qos: p.cfg.qos(class), handler: h}
	p.mu.Lock()
	p.subs[topic] = s
	p.mu.Unlock()
	if p.cli == nil || !p.cli.IsConnected() {
		return nil
	}
	if token := p.cli.Subscribe(topic, s.qos, wrap(h)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

func (p *PahoClient) onAck(_ string, payload []byte) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[m.CommandID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Debugf("received ack %s", m.CommandID)
	}
	p.mu.Unlock()
}

// ExpectAck registers commandID for acknowledgment tracking. It must be called
// before the command is published.
func (p *PahoClient) ExpectAck(commandID string) {
	p.mu.Lock()
	p.ackChans[commandID] = make(chan struct{}, 1)
	p.mu.Unlock()
}

// WaitForAck blocks until an ACK for the given command ID is received or timeout.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown command %s", commandID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, fmt.Errorf("command %s: %w", commandID, ErrAckTimeout)
	}
}

// Disconnect publishes the offline marker and closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		if p.cfg.LWTTopic != "" {
			p.cli.Publish(p.cfg.LWTTopic, p.cfg.LWTQoS, p.cfg.LWTRetain, p.cfg.LWTPayload).Wait()
		}
		p.cli.Disconnect(250)
	}
}
