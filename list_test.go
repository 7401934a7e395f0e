package rtos

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushPriorityOrdersHighestFirst(t *testing.T) {
	var l list
	low := &node{priority: 10}
	mid := &node{priority: 20}
	high := &node{priority: 30}

	l.pushPriority(mid)
	l.pushPriority(low)
	l.pushPriority(high)

	require.Equal(t, high, l.popFront())
	require.Equal(t, mid, l.popFront())
	require.Equal(t, low, l.popFront())
	require.Nil(t, l.popFront())
}

func TestListPushPriorityFIFOAmongEquals(t *testing.T) {
	var l list
	a := &node{priority: 5}
	b := &node{priority: 5}
	c := &node{priority: 5}

	l.pushPriority(a)
	l.pushPriority(b)
	l.pushPriority(c)

	require.Equal(t, a, l.popFront())
	require.Equal(t, b, l.popFront())
	require.Equal(t, c, l.popFront())
}

func TestListRemoveIsIdempotent(t *testing.T) {
	var l list
	n := &node{priority: 1}
	l.pushPriority(n)
	require.True(t, n.linked())

	n.remove()
	require.False(t, n.linked())
	require.True(t, l.empty())

	// Removing an already-unlinked node must be a silent no-op.
	require.NotPanics(t, func() { n.remove() })
}

func TestListRemoveFromMiddle(t *testing.T) {
	var l list
	a := &node{priority: 30}
	b := &node{priority: 20}
	c := &node{priority: 10}
	l.pushPriority(a)
	l.pushPriority(b)
	l.pushPriority(c)

	b.remove()
	require.Equal(t, 2, l.len())
	require.Equal(t, a, l.popFront())
	require.Equal(t, c, l.popFront())
}

func TestListPushBackIgnoresPriority(t *testing.T) {
	var l list
	a := &node{priority: 1}
	b := &node{priority: 100}
	l.pushBack(a)
	l.pushBack(b)

	require.Equal(t, a, l.popFront())
	require.Equal(t, b, l.popFront())
}

func TestListHostRecoversEnclosingRecord(t *testing.T) {
	tn := newTimeoutNode()
	var l list
	l.pushPriority(&tn.n)

	front := l.front()
	require.Same(t, tn, front.host.(*timeoutNode))
}

func TestListEachVisitsFrontToBack(t *testing.T) {
	var l list
	a := &node{priority: 30}
	b := &node{priority: 20}
	c := &node{priority: 10}
	l.pushPriority(a)
	l.pushPriority(b)
	l.pushPriority(c)

	var seen []*node
	l.each(func(n *node) { seen = append(seen, n) })
	require.Equal(t, []*node{a, b, c}, seen)
}

func TestListPushPriorityPanicsOnDoubleLink(t *testing.T) {
	var l list
	n := &node{priority: 1}
	l.pushPriority(n)
	require.Panics(t, func() { l.pushPriority(n) })
}
