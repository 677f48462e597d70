package databus

import (
	"strings"

	"gopkg.in/Shopify/sarama.v1"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
	// Key routes events of one campaign to the same partition.
	Key() string
}

type DataBus struct {
	producer sarama.SyncProducer
}

// InitDataBus connects a sync producer to the comma separated broker list.
// An empty host list disables the bus and returns nil.
func InitDataBus(host string) (*DataBus, error) {
	if strings.TrimSpace(host) == "" {
		log.Warn("empty kafka server found, skipping databus initialization.")
		return nil, nil
	}
	hosts := strings.Split(host, ",")
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	p, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.WrapAndReport(err, "create kafka producer")
	}
	log.Info("Kafka producer initialized...")
	return NewDataBus(p), nil
}

// NewDataBus wraps an existing producer.
func NewDataBus(p sarama.SyncProducer) *DataBus {
	return &DataBus{producer: p}
}

func (db *DataBus) PublishRaw(topic, key string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := db.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	log.Debugf("databus - produced %s to partition %d offset %d", topic, partition, offset)
	return nil
}

func (db *DataBus) Publish(e Event) error {
	return db.PublishRaw(e.Topic(), e.Key(), e.Serialize())
}

func (db *DataBus) Close() error {
	if db == nil || db.producer == nil {
		return nil
	}
	return db.producer.Close()
}
