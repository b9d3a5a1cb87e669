package stream

// Command is a pending receive request.
type Command struct {
	Flags     Flags // One-shot flags, cleared on first use
	TimeNs    int64 // Start time, used when Flags has FlagHasTime
	NumElems  int   // Requested elements; 0 streams until deactivated
	Remaining int   // Elements still to deliver for a finite command
}

// Finite reports whether the command is bounded to NumElems elements.
func (c *Command) Finite() bool {
	return c.NumElems > 0
}

// commandQueue is a FIFO of commands. Only the head is ever inspected or
// mutated.
type commandQueue struct {
	items []Command
	head  int
}

func (q *commandQueue) push(c Command) {
	q.items = append(q.items, c)
}

// front returns the head command, or nil when empty. The pointer is valid
// until the next push or popFront.
func (q *commandQueue) front() *Command {
	if q.head >= len(q.items) {
		return nil
	}
	return &q.items[q.head]
}

func (q *commandQueue) popFront() {
	if q.head >= len(q.items) {
		return
	}
	q.items[q.head] = Command{}
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 16 && 2*q.head >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *commandQueue) reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}

func (q *commandQueue) size() int {
	return len(q.items) - q.head
}
