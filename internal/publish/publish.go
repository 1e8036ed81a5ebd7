// internal/publish/publish.go
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/MysteriaLV/modbus-alert/internal/poller"
)

// MQTTClient is the part of the paho client the publisher uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config selects the broker and topic root.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QOS      byte
}

// HealthEvent is the retained payload for one device.
type HealthEvent struct {
	Address uint8     `json:"address"`
	Name    string    `json:"name,omitempty"`
	Up      bool      `json:"up"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// Publisher announces device health transitions over MQTT.
// It publishes only when a device's outcome changes, and never waits on
// the broker from the poll loop.
type Publisher struct {
	client MQTTClient
	topic  string
	qos    byte
	names  map[uint8]string
	last   map[uint8]poller.Outcome
	log    zerolog.Logger
}

// Connect builds a paho client for cfg and starts connecting in the
// background. The client keeps retrying until the broker is reachable.
func Connect(cfg Config, names map[uint8]string, log zerolog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("publish: broker required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	client.Connect()

	return New(client, cfg.Topic, cfg.QOS, names, log), nil
}

func New(client MQTTClient, topic string, qos byte, names map[uint8]string, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		qos:    qos,
		names:  names,
		last:   make(map[uint8]poller.Outcome),
		log:    log.With().Str("component", "publish").Logger(),
	}
}

// Topic is where health events for addr are published.
func (p *Publisher) Topic(addr uint8) string {
	return fmt.Sprintf("%s/%d/health", p.topic, addr)
}

func (p *Publisher) HandleResult(res poller.Result) {
	if prev, seen := p.last[res.Address]; seen && prev == res.Outcome {
		return
	}
	p.last[res.Address] = res.Outcome

	ev := HealthEvent{
		Address: res.Address,
		Name:    p.names[res.Address],
		Up:      res.Outcome == poller.Responding,
		At:      res.At.UTC(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Uint8("address", res.Address).Msg("encode health event")
		return
	}

	topic := p.Topic(res.Address)
	token := p.client.Publish(topic, p.qos, true, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

// Close disconnects, allowing 250ms for in-flight messages.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
