package rtos

import "time"

// QueueAttr configures a Queue before creation.
type QueueAttr struct {
	Name     string
	MsgSize  int
	Capacity int
}

// msgSlot is one fixed-size message buffer plus the intrusive node
// that links it into the occupied list, priority-ordered with FIFO
// among equal priorities (a priority message queue).
type msgSlot struct {
	n   node
	idx int32
}

// Queue is a priority message queue: Send enqueues a message ordered
// by priority (highest first, FIFO among equals), Receive dequeues the
// highest-priority message, blocking either side when the queue is
// full or empty respectively.
type Queue struct {
	kernel  *Kernel
	name    string
	msgSize int

	storage []byte
	slots   []msgSlot
	free    []int32 // LIFO stack of free slot indices

	occupied  list // messages, priority-ordered
	senders   list // threads blocked in Send (queue full)
	receivers list // threads blocked in Receive (queue empty)
}

// NewQueue creates a Queue bound to k with attr.Capacity slots of
// attr.MsgSize bytes each.
func (k *Kernel) NewQueue(attr QueueAttr) *Queue {
	q := &Queue{
		kernel:  k,
		name:    attr.Name,
		msgSize: attr.MsgSize,
		storage: make([]byte, attr.MsgSize*attr.Capacity),
		slots:   make([]msgSlot, attr.Capacity),
		free:    make([]int32, attr.Capacity),
	}
	for i := range q.slots {
		q.slots[i].idx = int32(i)
		q.slots[i].n.host = &q.slots[i]
		q.free[i] = int32(attr.Capacity - 1 - i)
	}
	return q
}

// Name returns the queue's diagnostic name.
func (q *Queue) Name() string { return q.name }

// Capacity returns the total number of message slots.
func (q *Queue) Capacity() int {
	return len(q.slots)
}

func (q *Queue) slotData(idx int32) []byte {
	start := int(idx) * q.msgSize
	return q.storage[start : start+q.msgSize : start+q.msgSize]
}

func (q *Queue) writeLocked(idx int32, data []byte, priority int) {
	n := copy(q.slotData(idx), data)
	clear(q.slotData(idx)[n:])
	q.slots[idx].n.priority = priority
	q.occupied.pushPriority(&q.slots[idx].n)
}

// Send enqueues data (len(data) must not exceed the queue's message
// size; a shorter message is zero-padded to it) at the given priority,
// blocking caller if the queue is full. A timeout of 0 waits
// indefinitely. Must not be called from handler mode; use TrySend from
// an ISR.
func (q *Queue) Send(caller *Thread, data []byte, priority int, timeout time.Duration) error {
	if len(data) > q.msgSize {
		return newErr("Queue.Send", StatusMessageTooBig, nil)
	}
	if q.kernel.InHandlerMode() {
		return newErr("Queue.Send", StatusPermission, nil)
	}
	q.kernel.mu.Lock()
	if n := len(q.free); n > 0 {
		idx := q.free[n-1]
		q.free = q.free[:n-1]
		q.writeLocked(idx, data, priority)
		q.kernel.mu.Unlock()
		q.notifyReceiver()
		return nil
	}
	q.kernel.mu.Unlock()

	status := q.kernel.blockOn(caller, &q.senders, timeout)
	if status != StatusOK {
		return newErr("Queue.Send", status, nil)
	}
	q.kernel.mu.Lock()
	q.writeLocked(caller.transferIndex, data, priority)
	q.kernel.mu.Unlock()
	q.notifyReceiver()
	return nil
}

// TrySend is the non-blocking form of Send. Safe to call from handler
// mode.
func (q *Queue) TrySend(data []byte, priority int) error {
	if len(data) > q.msgSize {
		return newErr("Queue.TrySend", StatusMessageTooBig, nil)
	}
	q.kernel.mu.Lock()
	n := len(q.free)
	if n == 0 {
		q.kernel.mu.Unlock()
		return newErr("Queue.TrySend", StatusWouldOverflow, nil)
	}
	idx := q.free[n-1]
	q.free = q.free[:n-1]
	q.writeLocked(idx, data, priority)
	q.kernel.mu.Unlock()
	q.notifyReceiver()
	return nil
}

// notifyReceiver hands the highest-priority occupied message directly
// to the highest-priority blocked receiver, if both exist.
func (q *Queue) notifyReceiver() {
	q.kernel.mu.Lock()
	r := q.receivers.popFront()
	if r == nil {
		q.kernel.mu.Unlock()
		return
	}
	m := q.occupied.front()
	if m == nil {
		q.kernel.mu.Unlock()
		return
	}
	m.remove()
	slot := m.host.(*msgSlot)
	r.owner.transferMsg = slot.idx
	q.kernel.mu.Unlock()
	r.owner.setWaitResult(StatusOK)
	q.kernel.wake(r.owner)
}

// notifySender hands a freed slot directly to the highest-priority
// blocked sender, if both exist.
func (q *Queue) notifySender() {
	q.kernel.mu.Lock()
	s := q.senders.popFront()
	if s == nil {
		q.kernel.mu.Unlock()
		return
	}
	n := len(q.free)
	if n == 0 {
		q.kernel.mu.Unlock()
		return
	}
	idx := q.free[n-1]
	q.free = q.free[:n-1]
	q.kernel.mu.Unlock()
	s.owner.transferIndex = idx
	s.owner.setWaitResult(StatusOK)
	q.kernel.wake(s.owner)
}

// Receive dequeues the highest-priority message, blocking caller if
// the queue is empty. A timeout of 0 waits indefinitely. The returned
// slice is a private copy, safe to retain past the slot's reuse. Must
// not be called from handler mode; use TryReceive from an ISR.
func (q *Queue) Receive(caller *Thread, timeout time.Duration) ([]byte, error) {
	if q.kernel.InHandlerMode() {
		return nil, newErr("Queue.Receive", StatusPermission, nil)
	}
	q.kernel.mu.Lock()
	if m := q.occupied.popFront(); m != nil {
		slot := m.host.(*msgSlot)
		msg := append([]byte(nil), q.slotData(slot.idx)...)
		q.free = append(q.free, slot.idx)
		q.kernel.mu.Unlock()
		q.notifySender()
		return msg, nil
	}
	q.kernel.mu.Unlock()

	status := q.kernel.blockOn(caller, &q.receivers, timeout)
	if status != StatusOK {
		return nil, newErr("Queue.Receive", status, nil)
	}
	q.kernel.mu.Lock()
	msg := append([]byte(nil), q.slotData(caller.transferMsg)...)
	q.free = append(q.free, caller.transferMsg)
	q.kernel.mu.Unlock()
	q.notifySender()
	return msg, nil
}

// TryReceive is the non-blocking form of Receive. Safe to call from
// handler mode.
func (q *Queue) TryReceive() ([]byte, error) {
	q.kernel.mu.Lock()
	m := q.occupied.popFront()
	if m == nil {
		q.kernel.mu.Unlock()
		return nil, newErr("Queue.TryReceive", StatusWouldBlock, nil)
	}
	slot := m.host.(*msgSlot)
	msg := append([]byte(nil), q.slotData(slot.idx)...)
	q.free = append(q.free, slot.idx)
	q.kernel.mu.Unlock()
	q.notifySender()
	return msg, nil
}
