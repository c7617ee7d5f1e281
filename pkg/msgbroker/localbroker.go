package msgbroker

import (
	"errors"
	"strings"
	"sync"
)

const localQueueSize = 1024

// localBroker is an in-process MessageBroker for single-instance
// deployments. A single dispatch goroutine drains the queue, so messages
// published to the same channel reach their handler in publish order.
type localBroker struct {
	sync.RWMutex
	handlers  map[string]MessageHandler
	queue     chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewLocalBroker returns an in-process implementation of MessageBroker
func NewLocalBroker() MessageBroker {
	lb := &localBroker{
		handlers: make(map[string]MessageHandler),
		queue:    make(chan *Message, localQueueSize),
		done:     make(chan struct{}),
	}
	go lb.serveMessages()
	return lb
}

func (lb *localBroker) serveMessages() {
	for {
		select {
		case <-lb.done:
			return
		case msg := <-lb.queue:
			lb.RLock()
			var handler MessageHandler
			for pattern, h := range lb.handlers {
				if matchChannel(pattern, msg.Channel) {
					handler = h
					break
				}
			}
			lb.RUnlock()
			if handler != nil {
				handler(msg)
			}
		}
	}
}

func (lb *localBroker) Publish(msg []byte, channel string) error {
	// checked on its own first: in a combined select a ready queue send
	// would race the closed signal
	select {
	case <-lb.done:
		return errors.New("broker closed")
	default:
	}
	select {
	case <-lb.done:
		return errors.New("broker closed")
	case lb.queue <- &Message{Channel: channel, Data: msg}:
		return nil
	}
}

func (lb *localBroker) Subscribe(pattern string, cb MessageHandler) error {
	lb.Lock()
	lb.handlers[pattern] = cb
	lb.Unlock()
	return nil
}

func (lb *localBroker) Unsubscribe(patterns ...string) error {
	lb.Lock()
	for _, p := range patterns {
		delete(lb.handlers, p)
	}
	lb.Unlock()
	return nil
}

func (lb *localBroker) Close() error {
	lb.closeOnce.Do(func() { close(lb.done) })
	return nil
}

// matchChannel supports the trailing-glob patterns accepted by redis
// PSUBSCRIBE, which is all the API uses.
func matchChannel(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}
