package comm

import "sync"

// Messages posted to a rank are queued per {source, tag} so that receives
// can pick them out in any order while keeping FIFO order within a pair.
type msgKey struct {
	src, tag int
}

type message struct {
	data []byte
	done chan struct{} // Closed by the receiver once data has been consumed
}

type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[msgKey][]*message
}

func newMailbox() (mb *mailbox) {
	mb = &mailbox{
		queues: make(map[msgKey][]*message),
	}
	mb.cond = sync.NewCond(&mb.mu)
	return
}

func (mb *mailbox) post(src, tag int, msg *message) {
	key := msgKey{src, tag}
	mb.mu.Lock()
	mb.queues[key] = append(mb.queues[key], msg)
	mb.cond.Broadcast()
	mb.mu.Unlock()
}

// take blocks until a message from src with tag is available, or the world
// is aborted.
func (mb *mailbox) take(w *World, src, tag int) (msg *message, err error) {
	key := msgKey{src, tag}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		if q := mb.queues[key]; len(q) != 0 {
			msg = q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(mb.queues, key)
			} else {
				mb.queues[key] = q[1:]
			}
			return
		}
		if err = w.abortError(); err != nil {
			return
		}
		mb.cond.Wait()
	}
}

// pending reports the number of queued, unreceived messages.
func (mb *mailbox) pending() (n int) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, q := range mb.queues {
		n += len(q)
	}
	return
}

func (mb *mailbox) wake() {
	mb.mu.Lock()
	mb.cond.Broadcast()
	mb.mu.Unlock()
}
