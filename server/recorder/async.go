package recorder

import (
	"log"
	"sync"
)

// Async moves writes off the caller's goroutine. The hub loop must never wait
// on disk, so events are queued and dropped when the queue is full.
type Async struct {
	next  Recorder
	queue chan func(Recorder) error
	wg    sync.WaitGroup
	once  sync.Once
}

func NewAsync(next Recorder, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{next: next, queue: make(chan func(Recorder) error, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for write := range a.queue {
		if err := write(a.next); err != nil {
			log.Printf("RECORDER: write failed: %v", err)
		}
	}
}

func (a *Async) enqueue(write func(Recorder) error) error {
	select {
	case a.queue <- write:
	default:
		log.Println("RECORDER: queue full, event dropped")
	}
	return nil
}

func (a *Async) RecordSurge(evt *SurgeEvent) error {
	return a.enqueue(func(r Recorder) error { return r.RecordSurge(evt) })
}

func (a *Async) RecordReward(evt *RewardEvent) error {
	return a.enqueue(func(r Recorder) error { return r.RecordReward(evt) })
}

func (a *Async) RecordInvestment(evt *InvestmentEvent) error {
	return a.enqueue(func(r Recorder) error { return r.RecordInvestment(evt) })
}

func (a *Async) RecordViral(evt *ViralEvent) error {
	return a.enqueue(func(r Recorder) error { return r.RecordViral(evt) })
}

// Close drains pending writes, then closes the wrapped recorder. Records
// must not be submitted after Close.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.queue) })
	a.wg.Wait()
	return a.next.Close()
}
