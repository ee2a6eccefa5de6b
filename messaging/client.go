// Package messaging connects the depot to its message broker and moves
// protocol envelopes in and out.
package messaging

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	kafka "github.com/segmentio/kafka-go"

	"github.com/cowaramupagencies/gas/config"
)

// Backends.
const (
	BackendKafka = "kafka"
	BackendMQTT  = "mqtt"
	BackendNATS  = "nats"
)

type MessageHandler func(topic string, payload []byte)

// Client is the broker connection, backed by Kafka, MQTT or NATS.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	kafka    *kafkaState
	mqttConn mqtt.Client
	natsConn *nats.Conn
	natsSubs []*nats.Subscription
	handlers map[string]MessageHandler
}

type kafkaState struct {
	readers map[string]*kafka.Reader
	writer  *kafka.Writer
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
	}
}

func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Backend
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case BackendKafka:
		return c.connectKafka()
	case BackendMQTT:
		return c.connectMQTT()
	case BackendNATS:
		return c.connectNATS()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			log.Printf("messaging: kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}
	ensureTopics(conn, c.cfg.InboundTopic, c.cfg.OutboundTopic, c.cfg.ManifestTopic)
	conn.Close()

	c.kafka = &kafkaState{
		readers: make(map[string]*kafka.Reader),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Failures
// are logged only, since the broker may auto-create topics.
func ensureTopics(conn *kafka.Conn, topics ...string) {
	var configs []kafka.TopicConfig
	for _, t := range topics {
		if t != "" {
			configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
		}
	}
	if len(configs) == 0 {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		log.Printf("messaging: cannot find controller for topic creation: %v", err)
		return
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Printf("messaging: cannot connect to controller: %v", err)
		return
	}
	defer controllerConn.Close()

	if err := controllerConn.CreateTopics(configs...); err != nil {
		log.Printf("messaging: topic auto-create: %v", err)
	} else {
		log.Printf("messaging: ensured topics exist: %v", topics)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	log.Printf("messaging: mqtt connected to %s", broker)
	c.mqttConn = client
	return nil
}

func (c *Client) connectNATS() error {
	conn, err := nats.Connect(c.cfg.NATS.URL,
		nats.Name("gasrund"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("messaging: nats connected to %s", c.cfg.NATS.URL)
	c.natsConn = conn
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.cfg.Backend {
	case BackendKafka:
		if c.kafka == nil || c.kafka.writer == nil {
			return fmt.Errorf("kafka not connected")
		}
		return c.kafka.writer.WriteMessages(context.Background(), kafka.Message{Topic: topic, Value: payload})
	case BackendMQTT:
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case BackendNATS:
		if c.natsConn == nil {
			return fmt.Errorf("nats not connected")
		}
		return c.natsConn.Publish(topic, payload)
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe delivers every message on topic to handler. The subscription is
// remembered and restored by Reconfigure.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler

	switch c.cfg.Backend {
	case BackendKafka:
		if c.kafka == nil {
			return fmt.Errorf("kafka not connected")
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.kafka.readers[topic] = reader
		go func() {
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					return
				}
				handler(msg.Topic, msg.Value)
			}
		}()
		return nil
	case BackendMQTT:
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Topic(), msg.Payload())
		})
		token.Wait()
		return token.Error()
	case BackendNATS:
		if c.natsConn == nil {
			return fmt.Errorf("nats not connected")
		}
		cb := func(msg *nats.Msg) { handler(msg.Subject, msg.Data) }
		var sub *nats.Subscription
		var err error
		if c.cfg.NATS.Queue != "" {
			sub, err = c.natsConn.QueueSubscribe(topic, c.cfg.NATS.Queue, cb)
		} else {
			sub, err = c.natsConn.Subscribe(topic, cb)
		}
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", topic, err)
		}
		c.natsSubs = append(c.natsSubs, sub)
		return nil
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.cfg.Backend {
	case BackendKafka:
		return c.kafka != nil
	case BackendMQTT:
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case BackendNATS:
		return c.natsConn != nil && c.natsConn.IsConnected()
	default:
		return false
	}
}

// Reconfigure closes the existing connection and reconnects with cfg,
// restoring every registered subscription.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.Close()
	c.mu.Lock()
	c.cfg = cfg
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		handlers[k] = v
	}
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}
	for topic, handler := range handlers {
		if err := c.Subscribe(topic, handler); err != nil {
			log.Printf("messaging: re-subscribe %s after reconfigure: %v", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kafka != nil {
		for _, r := range c.kafka.readers {
			r.Close()
		}
		if c.kafka.writer != nil {
			c.kafka.writer.Close()
		}
		c.kafka = nil
	}
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.natsConn != nil {
		for _, s := range c.natsSubs {
			s.Unsubscribe()
		}
		c.natsSubs = nil
		c.natsConn.Close()
		c.natsConn = nil
	}
}
