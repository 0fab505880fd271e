package reactor

// DialResult is what a dial resolves to: a ready channel or the reason the
// connection attempt failed
type DialResult struct {
	Channel *Channel
	Err     error
}

// Completion is the one-shot signal bridging the reactor's asynchronous dial
// back to a caller that wants a synchronous answer. The caller blocks on
// Done(); the reactor resolves it exactly once.
type Completion struct {
	done chan DialResult
}

func newCompletion() *Completion {
	return &Completion{
		// Buffered so that resolving never blocks the reactor, even if the
		// caller abandons the completion
		done: make(chan DialResult, 1),
	}
}

func (c *Completion) Done() <-chan DialResult {
	return c.done
}

func (c *Completion) resolve(result DialResult) {
	c.done <- result
}
