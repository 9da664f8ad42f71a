package deferred

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"grovecraft.io/internal/logging"
)

func TestRunPending_FIFO(t *testing.T) {
	q := New(0, nil)
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		q.Enqueue(func() { got = append(got, i) })
	}
	if n := q.RunPending(); n != 50 {
		t.Fatalf("ran %d want 50", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: %v", i, got)
		}
	}
	if q.Len() != 0 || q.RunPending() != 0 {
		t.Fatalf("queue not empty after drain")
	}
}

func TestRunPending_PanicIsolated(t *testing.T) {
	q := New(0, nil)
	var got []string
	q.Enqueue(func() { got = append(got, "a") })
	q.Enqueue(func() { panic("dispose failed") })
	q.Enqueue(func() { got = append(got, "c") })

	if n := q.RunPending(); n != 3 {
		t.Fatalf("ran %d want 3", n)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("got %v", got)
	}
	if st := q.Stats(); st.Failures != 1 || st.Executed != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestEnqueue_ConcurrentProducersExactlyOnce(t *testing.T) {
	const producers, perProducer = 8, 2000
	q := New(producers*perProducer+1, nil)

	seen := make([][]int, producers)
	for p := range seen {
		seen[p] = make([]int, perProducer)
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				i := i
				q.Enqueue(func() { seen[p][i]++ })
			}
		}(p)
	}

	// Drain while producers are still running, as a presentation loop would.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	total := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		total += q.RunPending()
	}
	total += q.RunPending()

	if total != producers*perProducer {
		t.Fatalf("executed %d want %d", total, producers*perProducer)
	}
	for p := range seen {
		for i, n := range seen[p] {
			if n != 1 {
				t.Fatalf("producer %d op %d ran %d times", p, i, n)
			}
		}
	}
}

func TestEnqueue_PerProducerOrder(t *testing.T) {
	q := New(10000, nil)
	var wg sync.WaitGroup
	last := make([]int, 4)
	for p := range last {
		last[p] = -1
	}
	var bad bool
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				i := i
				q.Enqueue(func() {
					if i != last[p]+1 {
						bad = true
					}
					last[p] = i
				})
			}
		}(p)
	}
	wg.Wait()
	q.RunPending()
	if bad {
		t.Fatalf("per-producer order violated")
	}
}

func TestEnqueue_WarnsOncePerCrossing(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("info", "text", false, &buf)
	q := New(3, log)
	for i := 0; i < 10; i++ {
		q.Enqueue(func() {})
	}
	if c := strings.Count(buf.String(), "backlog"); c != 1 {
		t.Fatalf("warnings: %d want 1\n%s", c, buf.String())
	}
	q.RunPending()
	for i := 0; i < 10; i++ {
		q.Enqueue(func() {})
	}
	if c := strings.Count(buf.String(), "backlog"); c != 2 {
		t.Fatalf("warnings after re-crossing: %d want 2", c)
	}
	if q.Len() != 10 {
		t.Fatalf("work dropped: %d", q.Len())
	}
}
