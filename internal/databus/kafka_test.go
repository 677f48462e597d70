package databus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/Shopify/sarama.v1"
)

type recordingProducer struct {
	sarama.SyncProducer
	msgs []*sarama.ProducerMessage
	err  error
}

func (p *recordingProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	p.msgs = append(p.msgs, msg)
	return 0, int64(len(p.msgs)), nil
}

type testEvent struct{ body string }

func (e testEvent) Serialize() []byte { return []byte(e.body) }
func (e testEvent) Topic() string     { return "campaigns" }
func (e testEvent) Key() string       { return "1" }

func TestPublish(t *testing.T) {
	p := &recordingProducer{}
	bus := NewDataBus(p)

	require.NoError(t, bus.Publish(testEvent{body: `{"id":1}`}))
	require.NoError(t, bus.Publish(testEvent{}), "empty payloads are skipped")

	require.Len(t, p.msgs, 1)
	assert.Equal(t, "campaigns", p.msgs[0].Topic)
	key, err := p.msgs[0].Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "1", string(key))
}

func TestInitDataBusDisabled(t *testing.T) {
	bus, err := InitDataBus(" ")
	require.NoError(t, err)
	assert.Nil(t, bus)
	assert.NoError(t, bus.Close())
}
