package messaging

import (
	"log"
	"sync"
	"time"

	"github.com/cowaramupagencies/gas/store"
)

const drainBatch = 50

// OutboxStore is the durable queue the drainer reads from.
type OutboxStore interface {
	ListPendingOutbox(limit int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	IncrementOutboxRetries(id int64) error
}

// Publisher sends raw bytes to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       OutboxStore
	pub      Publisher
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewOutboxDrainer(db OutboxStore, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

func (d *OutboxDrainer) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Drain()
		}
	}
}

// Drain publishes one batch of pending messages in enqueue order and returns
// how many were sent. A failed publish stops the batch so later messages do
// not overtake it.
func (d *OutboxDrainer) Drain() int {
	msgs, err := d.db.ListPendingOutbox(drainBatch)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.pub.Publish(msg.Topic, msg.Payload); err != nil {
			log.Printf("outbox: publish %s to %s failed: %v", msg.MsgType, msg.Topic, err)
			if err := d.db.IncrementOutboxRetries(msg.ID); err != nil {
				log.Printf("outbox: bump retries for %d: %v", msg.ID, err)
			}
			break
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("outbox: ack %d: %v", msg.ID, err)
			break
		}
		sent++
	}
	return sent
}
