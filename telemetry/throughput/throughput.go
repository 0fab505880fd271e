/*
The throughput package keeps a windowed count of how much of something (bytes,
messages) passed through per second. All bookkeeping happens on a single
goroutine fed by channels, so Observe is safe to call from any goroutine and
never takes a lock on the hot path. Once the done channel closes the counter
goes inert: observations are dropped and digests come back empty.
*/
package throughput

import (
	"time"
)

const interval time.Duration = time.Second

// Snapshot is a point-in-time view of a counter, safe to hold onto after the
// counter has moved on
type Snapshot struct {
	Unit  string    `json:"unit"`
	Total int       `json:"total"`
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
	Data  []int     `json:"data"`
}

type Throughput struct {
	unit  string
	count int
	total int
	start time.Time
	data  []int

	done        <-chan struct{}
	workQueue   chan int
	resetChan   chan bool
	requestChan chan chan Snapshot
}

func New(unit string, done <-chan struct{}) *Throughput {
	t := Throughput{
		unit:        unit,
		start:       time.Now().UTC(),
		done:        done,
		workQueue:   make(chan int, 15),
		resetChan:   make(chan bool),
		requestChan: make(chan chan Snapshot),
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.total += t.count
				t.data = append(t.data, t.count)

				// empty out our current window
				t.count = 0
			case e := <-t.workQueue:
				t.count += e
			case <-t.resetChan:
				// Anything still queued was observed before the reset,
				// so it goes too
				for drained := false; !drained; {
					select {
					case <-t.workQueue:
					default:
						drained = true
					}
				}

				t.count = 0
				t.total = 0
				t.start = time.Now().UTC()
				t.data = []int{}
			case reply := <-t.requestChan:
				// Fold in observations that were queued ahead of this
				// request so the snapshot doesn't miss them
				for folded := false; !folded; {
					select {
					case e := <-t.workQueue:
						t.count += e
					default:
						folded = true
					}
				}

				data := make([]int, len(t.data))
				copy(data, t.data)

				reply <- Snapshot{
					Unit:  t.unit,
					Total: t.total + t.count,
					Start: t.start,
					Stop:  time.Now().UTC(),
					Data:  data,
				}
			}
		}
	}()

	return &t
}

func (t *Throughput) Observe(n int) {
	select {
	case t.workQueue <- n:
	case <-t.done:
	}
}

func (t *Throughput) Reset() {
	select {
	case t.resetChan <- true:
	case <-t.done:
	}
}

func (t *Throughput) Digest() Snapshot {
	reply := make(chan Snapshot, 1)

	select {
	case t.requestChan <- reply:
		return <-reply
	case <-t.done:
		return Snapshot{Unit: t.unit}
	}
}
