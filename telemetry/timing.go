package telemetry

import (
	"sync"
	"time"
)

// TimingCollector keeps every timer it hands out and reports them as a tree. Each
// Start creates a new root; nesting happens only through Timer.Child, so concurrent
// operations never end up under each other.
type TimingCollector struct {
	mu    sync.Mutex
	roots []*timerNode
}

type timerNode struct {
	name     string
	start    time.Time
	end      time.Time
	children []*timerNode
}

func (n *timerNode) duration() time.Duration {
	if n.end.IsZero() {
		return 0
	}
	return n.end.Sub(n.start)
}

// NewTimingCollector creates a new timing collector.
func NewTimingCollector() *TimingCollector {
	return &TimingCollector{}
}

// Start begins timing a top-level operation.
func (c *TimingCollector) Start(name string) Timer {
	node := &timerNode{name: name, start: time.Now()}

	c.mu.Lock()
	c.roots = append(c.roots, node)
	c.mu.Unlock()

	return &timingTimer{collector: c, node: node}
}

type timingTimer struct {
	collector *TimingCollector
	node      *timerNode
}

func (t *timingTimer) End() {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()

	if t.node.end.IsZero() {
		t.node.end = time.Now()
	}
}

func (t *timingTimer) Child(name string) Timer {
	node := &timerNode{name: name, start: time.Now()}

	t.collector.mu.Lock()
	t.node.children = append(t.node.children, node)
	t.collector.mu.Unlock()

	return &timingTimer{collector: t.collector, node: node}
}

// Durations returns the total duration per operation name across all timers,
// children included.
func (c *TimingCollector) Durations() map[string]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	totals := make(map[string]time.Duration)
	var walk func(nodes []*timerNode)
	walk = func(nodes []*timerNode) {
		for _, node := range nodes {
			totals[node.name] += node.duration()
			walk(node.children)
		}
	}
	walk(c.roots)
	return totals
}
