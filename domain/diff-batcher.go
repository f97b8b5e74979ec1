package domain

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

const DefaultBatchInterval = time.Second

// DiffBatcher collects l2 changes as they arrive and hands them to the consumer
// once per interval, so the consumer runs at a fixed cadence whatever the feed rate is.
// The buffer is unbounded.
type DiffBatcher struct {
	interval time.Duration
	emit     func(batch []PriceChange)

	buffer  deque.Deque[PriceChange]
	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func NewDiffBatcher(interval time.Duration, emit func(batch []PriceChange)) *DiffBatcher {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	return &DiffBatcher{
		interval: interval,
		emit:     emit,
		done:     make(chan struct{}),
	}
}

func (b *DiffBatcher) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return
	}
	b.started = true

	b.wg.Add(1)
	go b.run()
}

// Add appends changes in arrival order. It never blocks on the consumer.
func (b *DiffBatcher) Add(changes ...PriceChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	for _, change := range changes {
		b.buffer.PushBack(change)
	}
}

func (b *DiffBatcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Len()
}

// Stop cancels the tick. Whatever is buffered at this point is dropped.
// No batch is emitted after Stop returns.
func (b *DiffBatcher) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.buffer.Clear()
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *DiffBatcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

func (b *DiffBatcher) flush() {
	b.mu.Lock()
	if b.stopped || b.buffer.Len() == 0 {
		b.mu.Unlock()
		return
	}

	batch := make([]PriceChange, 0, b.buffer.Len())
	for b.buffer.Len() > 0 {
		batch = append(batch, b.buffer.PopFront())
	}
	b.mu.Unlock()

	b.emit(batch)
}
