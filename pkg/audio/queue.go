// Package audio owns the playback side of the fish: a task-tracking
// queue, the playback worker that feeds the speaker and the mouth, the
// response history recorder, and wake-up clips.
package audio

import "sync"

// ItemKind distinguishes what a queue entry carries.
type ItemKind int

const (
	// KindSpeech is assistant speech: the PCM drives both the speaker
	// and the mouth flapper.
	KindSpeech ItemKind = iota
	// KindSong carries a song chunk with separate stems: full mix for
	// the speaker, vocals for the mouth, and a drums level for the tail.
	KindSong
)

// Item is one unit of playback work.
type Item struct {
	Kind ItemKind

	// PCM is 24kHz mono 16-bit little-endian audio for the speaker.
	PCM []byte

	// Vocals is the mouth-driving PCM for song items.
	Vocals []byte

	// DrumsRMS is the drum stem level for song items, used for
	// on-beat tail flicks.
	DrumsRMS float64
}

// Queue is a FIFO with outstanding-task tracking in the style of
// Python's queue.Queue: Join blocks until every item that was ever Put
// has been matched by a TaskDone.
type Queue struct {
	mu         sync.Mutex
	ready      *sync.Cond
	done       *sync.Cond
	items      []*Item
	unfinished int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.ready = sync.NewCond(&q.mu)
	q.done = sync.NewCond(&q.mu)
	return q
}

// Put appends an item. A nil item is the stop sentinel for the worker.
func (q *Queue) Put(item *Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.unfinished++
	q.mu.Unlock()
	q.ready.Signal()
}

// Get blocks until an item is available and removes it. The returned
// item may be nil, the stop sentinel.
func (q *Queue) Get() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.ready.Wait()
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// TaskDone marks one previously gotten item as processed.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
		if q.unfinished == 0 {
			q.done.Broadcast()
		}
	}
}

// Join blocks until all outstanding items have been processed.
func (q *Queue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		q.done.Wait()
	}
}

// Flush discards everything still queued, marking each discarded item
// done so a pending Join unblocks. Items already taken by the worker
// are not affected.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for range q.items {
		if q.unfinished > 0 {
			q.unfinished--
		}
	}
	q.items = nil
	if q.unfinished == 0 {
		q.done.Broadcast()
	}
}

// Len reports how many items are waiting to be taken.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished reports how many items are queued or in flight.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}
