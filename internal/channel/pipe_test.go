package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/nbsync/internal/change"
	"github.com/starford/nbsync/internal/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

type recorder struct {
	mu   sync.Mutex
	envs []Envelope
	fail int // number of calls to fail before succeeding
}

func (r *recorder) handle(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("transient")
	}
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.envs))
	for i, e := range r.envs {
		out[i] = e.Seq
	}
	return out
}

func startPipe(t *testing.T, h Handler, opts ...PipeOption) *Pipe {
	t.Helper()
	p := NewPipe("test", h, append([]PipeOption{WithLogger(quiet)}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-p.Done()
	})
	return p
}

func TestPipe_DeliversInOrder(t *testing.T) {
	r := &recorder{}
	p := startPipe(t, r.handle)
	for range 50 {
		if err := p.Send(Envelope{Type: TypeLoadAll}); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, func() bool { return len(r.seqs()) == 50 })
	for i, s := range r.seqs() {
		if s != uint64(i+1) {
			t.Fatalf("delivery %d has seq %d", i, s)
		}
	}
}

func TestPipe_RetriesFailedDelivery(t *testing.T) {
	r := &recorder{fail: 2}
	p := startPipe(t, r.handle, WithRetries(3, time.Millisecond))
	_ = p.Send(Envelope{Type: TypeLoadAll})
	_ = p.Send(Envelope{Type: TypeLoadAll})
	eventually(t, func() bool { return len(r.seqs()) == 2 })
	if got := r.seqs(); got[0] != 1 || got[1] != 2 {
		t.Errorf("seqs = %v", got)
	}
}

func TestPipe_DropsAfterRetries(t *testing.T) {
	r := &recorder{fail: 2}
	p := startPipe(t, r.handle, WithRetries(1, time.Millisecond))
	_ = p.Send(Envelope{Type: TypeLoadAll})
	_ = p.Send(Envelope{Type: TypeLoadAll})
	eventually(t, func() bool { return p.Pending() == 0 && len(r.seqs()) == 1 })
	if got := r.seqs(); got[0] != 2 {
		t.Errorf("seqs = %v, want [2]", got)
	}
}

func TestPipe_NoSharedMemory(t *testing.T) {
	r := &recorder{}
	p := startPipe(t, r.handle)

	cell := models.NewEmptyCell("a")
	cell.Data.Source = "before"
	c := change.NewInsert(cell, 0, "")
	_ = p.Send(Envelope{Type: TypeUpdate, Change: &c})
	c.Cell.Data.Source = "after"

	eventually(t, func() bool { return len(r.seqs()) == 1 })
	if got := r.envs[0].Change.Cell.Data.Source; got != "before" {
		t.Errorf("delivered source = %q", got)
	}
}

func TestPipe_CloseDrains(t *testing.T) {
	r := &recorder{}
	p := NewPipe("drain", r.handle, WithLogger(quiet))
	for range 3 {
		_ = p.Send(Envelope{Type: TypeLoadAll})
	}
	p.Close()
	if err := p.Send(Envelope{Type: TypeLoadAll}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(r.seqs()); n != 3 {
		t.Errorf("delivered %d, want 3", n)
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, in := range []string{`{"type":"update","seq":1}`, `{"type":"nope"}`, `[]`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%s) should fail", in)
		}
	}
}

func TestEncode_NoHTMLEscape(t *testing.T) {
	cell := models.NewEmptyCell("a")
	cell.Data.Source = "<b>&</b>"
	data, err := Encode(Envelope{Type: TypeLoadAll, Cells: []models.Cell{cell}})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Cells[0].Data.Source != "<b>&</b>" {
		t.Errorf("source = %q", env.Cells[0].Data.Source)
	}
	if !strings.Contains(string(data), "<b>&</b>") {
		t.Errorf("encoded form escapes HTML: %s", data)
	}
}
