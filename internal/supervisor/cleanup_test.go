package supervisor

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/randomizedcoder/go-workload-monitor/internal/process"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGroup records signals sent to a pretend process group.
type fakeGroup struct {
	mu      sync.Mutex
	sent    []syscall.Signal
	gone    bool
	alive   atomic.Int32 // remaining alive polls; <0 = forever
	sigWait time.Duration
}

func (g *fakeGroup) signal(_ int, sig syscall.Signal) error {
	if g.sigWait > 0 {
		time.Sleep(g.sigWait)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sig)
	if g.gone {
		return process.ErrGroupGone
	}
	return nil
}

func (g *fakeGroup) isAlive(int) bool {
	n := g.alive.Load()
	if n < 0 {
		return true
	}
	if n == 0 {
		return false
	}
	g.alive.Add(-1)
	return true
}

func (g *fakeGroup) signals() []syscall.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]syscall.Signal(nil), g.sent...)
}

func newFakeCleanup(g *fakeGroup, grace time.Duration) *Cleanup {
	c := NewCleanup(4242, grace, newTestLogger())
	c.signal = g.signal
	c.alive = g.isAlive
	return c
}

func TestCleanup_ConcurrentRunsSignalOnce(t *testing.T) {
	g := &fakeGroup{sigWait: 5 * time.Millisecond}
	g.alive.Store(-1)
	c := newFakeCleanup(g, 50*time.Millisecond)

	const callers = 32
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		early atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.Run()
			select {
			case <-c.Done():
			default:
				early.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	got := g.signals()
	if len(got) != 2 || got[0] != syscall.SIGTERM || got[1] != syscall.SIGKILL {
		t.Errorf("signals = %v, want [SIGTERM SIGKILL] exactly once", got)
	}
	if c.Signals() != 1 {
		t.Errorf("Signals() = %d, want 1", c.Signals())
	}
	if early.Load() != 0 {
		t.Errorf("%d callers returned before cleanup finished", early.Load())
	}
}

func TestCleanup_SecondRunIsNoop(t *testing.T) {
	g := &fakeGroup{}
	c := newFakeCleanup(g, time.Second)

	c.Run()
	c.Run()
	c.Run()

	if got := g.signals(); len(got) != 1 || got[0] != syscall.SIGTERM {
		t.Errorf("signals = %v, want single SIGTERM", got)
	}
	if c.Signals() != 1 {
		t.Errorf("Signals() = %d, want 1", c.Signals())
	}
}

func TestCleanup_GroupAlreadyGone(t *testing.T) {
	g := &fakeGroup{gone: true}
	g.alive.Store(-1)
	c := newFakeCleanup(g, time.Hour)

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup waited for a group that was already gone")
	}
	if got := g.signals(); len(got) != 1 {
		t.Errorf("signals = %v, want only SIGTERM", got)
	}
}

func TestCleanup_GroupDrainsWithinGrace(t *testing.T) {
	g := &fakeGroup{}
	g.alive.Store(3)
	c := newFakeCleanup(g, time.Hour)

	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	c.Run()

	if got := g.signals(); len(got) != 1 || got[0] != syscall.SIGTERM {
		t.Errorf("signals = %v, want SIGTERM only", got)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("poll %d slept %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestCleanup_EscalatesAfterGrace(t *testing.T) {
	g := &fakeGroup{}
	g.alive.Store(-1)
	grace := 100 * time.Millisecond
	c := newFakeCleanup(g, grace)

	start := time.Now()
	c.Run()
	elapsed := time.Since(start)

	if got := g.signals(); len(got) != 2 || got[1] != syscall.SIGKILL {
		t.Errorf("signals = %v, want SIGTERM then SIGKILL", got)
	}
	if elapsed < grace {
		t.Errorf("escalated after %v, before grace %v", elapsed, grace)
	}
	if elapsed > grace+time.Second {
		t.Errorf("escalated after %v, far beyond grace %v", elapsed, grace)
	}
}

func TestCleanup_RealGroupIgnoringSIGTERM(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}

	l := &process.Launcher{}
	h, err := l.Start(process.Command{
		Text: `trap "" TERM; sleep 30`,
		Argv: []string{"sh", "-c", `trap "" TERM; sleep 30`},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exit := make(chan int, 1)
	go func() {
		code, _ := h.Wait()
		exit <- code
	}()

	// Let the shell install its trap.
	time.Sleep(200 * time.Millisecond)

	c := NewCleanup(h.PGID, 200*time.Millisecond, newTestLogger())
	c.Run()

	select {
	case code := <-exit:
		if code != 128+int(syscall.SIGKILL) {
			t.Errorf("exit code = %d, want %d", code, 128+int(syscall.SIGKILL))
		}
	case <-time.After(5 * time.Second):
		h.Kill()
		t.Fatal("workload survived cleanup")
	}

	c.Run()
	if c.Signals() != 1 {
		t.Errorf("Signals() = %d, want 1", c.Signals())
	}
}
