package events

import (
	"sync"
	"time"
)

// EventType names a coordinator occurrence.
type EventType string

const (
	EventTaskCreated      EventType = "task.created"
	EventTaskAssigned     EventType = "task.assigned"
	EventTaskInProgress   EventType = "task.in_progress"
	EventTaskCompleted    EventType = "task.completed"
	EventTaskDone         EventType = "task.done"
	EventTaskFailed       EventType = "task.failed"
	EventTaskCancelled    EventType = "task.cancelled"
	EventTaskRequeued     EventType = "task.requeued"
	EventWorkerRegistered EventType = "worker.registered"
	EventConsensusUpdated EventType = "consensus.updated"
)

// Event is a single notification. Metadata keys are free-form and
// become structured log fields in the log subscriber.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber receives published events. The channel is closed by
// Unsubscribe, never by the subscriber itself.
type Subscriber chan *Event

const (
	publishBuffer    = 100
	subscriberBuffer = 50
)

// Broker fans events out from publishers to subscribers through a
// single dispatch goroutine, decoupling Publish callers from slow
// consumers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	eventCh chan *Event
	stopCh  chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
		eventCh:     make(chan *Event, publishBuffer),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the dispatch loop. Publish before Start only buffers.
func (b *Broker) Start() {
	go b.dispatch()
}

// Stop halts dispatch. Buffered events are discarded; subscribers keep
// their channels until Unsubscribe.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel, ending any
// range loop draining it.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	close(sub)
}

// Publish enqueues an event for dispatch, stamping the time if the
// caller left it zero. Returns immediately once the broker stops.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) dispatch() {
	for {
		select {
		case event := <-b.eventCh:
			b.fanOut(event)
		case <-b.stopCh:
			return
		}
	}
}

// fanOut delivers to every subscriber with room; full buffers drop.
func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}
