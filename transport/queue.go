package transport

import "github.com/risa-org/ramses2/ramses"

// queued is one command waiting for dispatch, stamped with the FIFO
// sequence number the transport assigned at enqueue time.
type queued struct {
	cmd *ramses.Command
	seq uint64
}

// cmdQueue is a min-heap of queued commands ordered by (priority,
// enqueue sequence). Lower priority value dispatches first; equal
// priorities dispatch strictly in arrival order.
//
// The heap is internal to the transport — everything that touches it
// does so under the transport's mutex, so the heap itself carries no
// locking. Used via container/heap.
type cmdQueue []queued

func (q cmdQueue) Len() int { return len(q) }

func (q cmdQueue) Less(i, j int) bool {
	if q[i].cmd.Priority() != q[j].cmd.Priority() {
		return q[i].cmd.Priority() < q[j].cmd.Priority()
	}
	return q[i].seq < q[j].seq
}

func (q cmdQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *cmdQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *cmdQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = queued{} // don't retain the command
	*q = old[:n-1]
	return item
}
