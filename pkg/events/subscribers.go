package events

import (
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/metrics"
)

// StartLogSubscriber attaches a subscriber that logs every event. The
// returned subscriber is closed through Unsubscribe, which also ends the
// consuming goroutine.
func (b *Broker) StartLogSubscriber() Subscriber {
	sub := b.Subscribe()
	go func() {
		logger := log.WithComponent("events")
		for event := range sub {
			e := logger.Debug().Str("type", string(event.Type))
			for k, v := range event.Metadata {
				e = e.Str(k, v)
			}
			e.Msg(event.Message)
		}
	}()
	return sub
}

// StartMetricsSubscriber attaches a subscriber that counts events by type.
func (b *Broker) StartMetricsSubscriber() Subscriber {
	sub := b.Subscribe()
	go func() {
		for event := range sub {
			metrics.EventsTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}()
	return sub
}
