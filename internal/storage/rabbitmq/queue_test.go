package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type binding struct {
	queue, key, exchange string
}

type publishing struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	exchanges  map[string]string
	queues     []string
	bindings   []binding
	published  []publishing
	publishErr error
	declareErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: map[string]string{}}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishing{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestSetupTopology(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, SetupTopology(ch))

	assert.Equal(t, map[string]string{
		BookingEventsExchange: Topic,
		CommandsExchange:      Direct,
	}, ch.exchanges)
	assert.ElementsMatch(t, []string{BookingEventsQueue, DispatchTriggerQueue}, ch.queues)
	assert.ElementsMatch(t, []binding{
		{queue: BookingEventsQueue, key: "booking.#", exchange: BookingEventsExchange},
		{queue: DispatchTriggerQueue, key: DispatchRoutingKey, exchange: CommandsExchange},
	}, ch.bindings)
}

func TestNewPublisher_TopologyFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("ACCESS_REFUSED")
	logger := zerolog.Nop()

	_, err := newPublisher(ch, &logger)
	assert.ErrorContains(t, err, "ACCESS_REFUSED")
}

func TestPublisher_PublishDispatchTrigger(t *testing.T) {
	ch := newFakeChannel()
	logger := zerolog.Nop()
	p, err := newPublisher(ch, &logger)
	require.NoError(t, err)

	require.NoError(t, p.PublishDispatchTrigger(context.Background(), "admin-api"))
	require.Len(t, ch.published, 1)

	pub := ch.published[0]
	assert.Equal(t, CommandsExchange, pub.exchange)
	assert.Equal(t, DispatchRoutingKey, pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var req model.DispatchRequest
	require.NoError(t, json.Unmarshal(pub.msg.Body, &req))
	assert.Equal(t, "admin-api", req.RequestedBy)
	assert.False(t, req.RequestedAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_PublishFailure(t *testing.T) {
	ch := newFakeChannel()
	logger := zerolog.Nop()
	p, err := newPublisher(ch, &logger)
	require.NoError(t, err)

	ch.publishErr = amqp.ErrClosed
	err = p.PublishDispatchTrigger(context.Background(), "admin-api")
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
