package motor

import (
	"math/rand"
	"time"
)

// Interlude plays a short idle routine between song sections or long
// replies: pull the head in, flick the tail a few times, then usually
// pop the head back out. Runs in the background; a second call while
// one is in flight on the same controller is ignored.
func (c *Controller) Interlude() {
	if !c.interluding.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.interluding.Store(false)

		c.MoveHead(false)
		time.Sleep(randDuration(200*time.Millisecond, 2*time.Second))

		flaps := 1 + rand.Intn(3)
		for i := 0; i < flaps; i++ {
			c.MoveTail(200 * time.Millisecond)
			time.Sleep(randDuration(250*time.Millisecond, 900*time.Millisecond))
		}
		if rand.Float64() < 0.9 {
			c.MoveHead(true)
		}
	}()
}

func randDuration(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
