package timingmesh

import (
	"sync"

	pkgif "github.com/dep2p/go-timingmesh/pkg/interfaces"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

// Event 通知名称
type Event string

const (
	// EventChange 时间线变化，载荷为 types.EvtChange
	EventChange Event = "change"

	// EventAdjust skew 变化，载荷为 types.EvtAdjust
	EventAdjust Event = "adjust"

	// EventReadyStateChange 就绪状态变化，载荷为 types.EvtReadyStateChange
	EventReadyStateChange Event = "readystatechange"

	// EventError 致命错误，载荷为 types.EvtError
	EventError Event = "error"
)

// dispatchBuffer 分发订阅的缓冲区大小
const dispatchBuffer = 1024

// ListenerID 监听器标识，由 On 返回，用于 Off
type ListenerID uint64

// Listener 监听器，在分发 goroutine 上串行调用
type Listener func(evt any)

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// listenerTable 监听器表
//
// 以 ListenerID 为键，生命周期与 Provider 相同。分发 goroutine 在总线关闭、
// 全部订阅通道排空后退出。
type listenerTable struct {
	mu      sync.RWMutex
	nextID  ListenerID
	byEvent map[Event][]listenerEntry
	index   map[ListenerID]Event

	done chan struct{}
}

func newListenerTable() *listenerTable {
	return &listenerTable{
		byEvent: make(map[Event][]listenerEntry),
		index:   make(map[ListenerID]Event),
		done:    make(chan struct{}),
	}
}

// eventType 返回通知名称对应的总线事件类型
func eventType(event Event) (interface{}, bool) {
	switch event {
	case EventChange:
		return new(types.EvtChange), true
	case EventAdjust:
		return new(types.EvtAdjust), true
	case EventReadyStateChange:
		return new(types.EvtReadyStateChange), true
	case EventError:
		return new(types.EvtError), true
	default:
		return nil, false
	}
}

func (t *listenerTable) add(event Event, fn Listener) (ListenerID, error) {
	if _, ok := eventType(event); !ok || fn == nil {
		return 0, ErrUnknownEvent
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.byEvent[event] = append(t.byEvent[event], listenerEntry{id: id, fn: fn})
	t.index[id] = event
	return id, nil
}

func (t *listenerTable) remove(id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	event, ok := t.index[id]
	if !ok {
		return false
	}
	delete(t.index, id)

	entries := t.byEvent[event]
	for i, e := range entries {
		if e.id == id {
			// 复制而非原地删除，正在分发的快照不受影响
			next := make([]listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			t.byEvent[event] = next
			break
		}
	}
	return true
}

func (t *listenerTable) snapshot(event Event) []listenerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byEvent[event]
}

// start 订阅四类通知并启动分发 goroutine
func (t *listenerTable) start(bus pkgif.EventBus) error {
	events := []Event{EventChange, EventAdjust, EventReadyStateChange, EventError}
	subs := make([]pkgif.Subscription, 0, len(events))
	for _, event := range events {
		typ, _ := eventType(event)
		sub, err := bus.Subscribe(typ, pkgif.BufSize(dispatchBuffer))
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			return err
		}
		subs = append(subs, sub)
	}

	go t.dispatch(subs[0].Out(), subs[1].Out(), subs[2].Out(), subs[3].Out())
	return nil
}

func (t *listenerTable) dispatch(changes, adjusts, states, errs <-chan interface{}) {
	defer close(t.done)

	for changes != nil || adjusts != nil || states != nil || errs != nil {
		var (
			evt   interface{}
			ok    bool
			event Event
		)
		select {
		case evt, ok = <-changes:
			if !ok {
				changes = nil
				continue
			}
			event = EventChange
		case evt, ok = <-adjusts:
			if !ok {
				adjusts = nil
				continue
			}
			event = EventAdjust
		case evt, ok = <-states:
			if !ok {
				states = nil
				continue
			}
			event = EventReadyStateChange
		case evt, ok = <-errs:
			if !ok {
				errs = nil
				continue
			}
			event = EventError
		}

		for _, e := range t.snapshot(event) {
			t.call(event, e, evt)
		}
	}
}

// call 隔离监听器 panic，避免分发 goroutine 退出
func (t *listenerTable) call(event Event, e listenerEntry, evt interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("监听器 panic", "event", string(event), "listener", uint64(e.id), "panic", r)
		}
	}()
	e.fn(evt)
}
