package timing

import "container/heap"

type readyQueue struct {
	processes []*Process
}

func (q *readyQueue) Push(p *Process) {
	q.processes = append(q.processes, p)
}

func (q *readyQueue) Pop() *Process {
	if len(q.processes) == 0 {
		return nil
	}

	p := q.processes[0]
	q.processes[0] = nil
	q.processes = q.processes[1:]

	return p
}

func (q *readyQueue) Len() int {
	return len(q.processes)
}

func (q *readyQueue) Clear() {
	q.processes = nil
}

// A wakeup is a process waiting for the clock to reach a given time. The
// sequence number keeps wakeups at the same time in the order they were
// requested.
type wakeup struct {
	at      VTime
	seq     uint64
	process *Process
}

type wakeupQueue struct {
	wakeups wakeupHeap
	nextSeq uint64
}

func (q *wakeupQueue) Push(at VTime, p *Process) {
	q.nextSeq++
	heap.Push(&q.wakeups, wakeup{at: at, seq: q.nextSeq, process: p})
}

func (q *wakeupQueue) Pop() wakeup {
	return heap.Pop(&q.wakeups).(wakeup)
}

func (q *wakeupQueue) Peek() wakeup {
	return q.wakeups[0]
}

func (q *wakeupQueue) Len() int {
	return q.wakeups.Len()
}

func (q *wakeupQueue) Clear() {
	q.wakeups = nil
}

type wakeupHeap []wakeup

func (h wakeupHeap) Len() int { return len(h) }

func (h wakeupHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}

	return h[i].at < h[j].at
}

func (h wakeupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *wakeupHeap) Push(x any) {
	*h = append(*h, x.(wakeup))
}

func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	*h = old[:n-1]

	return w
}
