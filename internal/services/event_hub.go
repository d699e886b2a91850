package services

import (
	"context"
	"sync"

	"leasehub/pkg/logger"
)

// Subscriber 实时事件订阅者，PropertyID 非0时只接收该物业的事件
type Subscriber struct {
	C          chan LeaseEvent
	propertyID uint
}

// EventHub 向在线订阅者（WebSocket 连接）广播租约事件
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	buffer      int
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      buffer,
	}
}

func (h *EventHub) Subscribe(propertyID uint) *Subscriber {
	sub := &Subscriber{
		C:          make(chan LeaseEvent, h.buffer),
		propertyID: propertyID,
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *EventHub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.C)
	}
}

// Deliver 慢订阅者的事件直接丢弃，不影响其他订阅者
func (h *EventHub) Deliver(_ context.Context, event LeaseEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if sub.propertyID != 0 && sub.propertyID != event.PropertyID {
			continue
		}
		select {
		case sub.C <- event:
		default:
			logger.GetLogger().Warnf("订阅者缓冲已满，丢弃事件 %s(%s)", event.Name, event.LeaseID)
		}
	}
	return nil
}

func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
