package usbip

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// dispatcher is the per-connection URB dispatcher (§4.7): it correlates
// submitted URBs with in-flight handler goroutines, routes unlinks, and
// funnels every completion frame through a single writer so responses are
// never interleaved on the wire.
type dispatcher struct {
	device  *Device
	logger  log.Logger
	metrics *Metrics

	mu      sync.Mutex
	pending map[uint32]*Transfer

	frames chan []byte
}

func newDispatcher(device *Device, logger log.Logger, metrics *Metrics, writeQueueSize int) *dispatcher {
	return &dispatcher{
		device:  device,
		logger:  logger,
		metrics: metrics,
		pending: make(map[uint32]*Transfer),
		frames:  make(chan []byte, writeQueueSize),
	}
}

// endpointLabel renders a transfer's endpoint for metric partitioning, e.g.
// "1.out" or "0.in".
func endpointLabel(t *Transfer) string {
	dir := "out"
	if t.Direction == DirIn {
		dir = "in"
	}
	return itoa(uint64(t.Endpoint)) + "." + dir
}

// outcomeLabel renders a completed transfer's status for the
// urbs_completed_total counter.
func outcomeLabel(status int32) string {
	switch status {
	case 0:
		return "success"
	case statusFor(ErrStall):
		return "stall"
	case statusFor(ErrCancelled):
		return "cancelled"
	case statusFor(ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// submit registers t as in-flight and spawns its handler invocation. The
// handler runs with the connection-scoped handle function, which performs
// the actual class/standard dispatch and produces the RET_SUBMIT frame.
//
// The pending-map deletion in retire is the sole arbiter between this
// completion path and a racing unlink: whichever of the two actually
// deletes the entry decides the outcome. If unlink wins, the frame handle
// produced is dropped — RET_UNLINK has already answered for this sequence
// number, and a real vhci client does not expect a RET_SUBMIT after that.
func (d *dispatcher) submit(t *Transfer, handle func(*Transfer) []byte) {
	d.mu.Lock()
	d.pending[t.SeqNum] = t
	d.mu.Unlock()
	d.metrics.urbSubmitted(endpointLabel(t))

	go func() {
		frame := handle(t)
		if !d.retire(t.SeqNum) {
			return
		}
		d.metrics.urbRetired(endpointLabel(t), outcomeLabel(t.Status))
		if frame != nil {
			d.frames <- frame
		}
	}()
}

// retire removes seq from the pending map if still present, reporting
// whether it was found there (i.e. this call is the one retiring it).
func (d *dispatcher) retire(seq uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[seq]
	delete(d.pending, seq)
	return ok
}

// unlink atomically retires the transfer targeted by target and returns the
// status RET_UNLINK should carry: -ECONNRESET if this call is the one that
// retired a still-pending transfer, 0 if it had already been retired by its
// own completion (or never existed, e.g. a stale/duplicate unlink).
func (d *dispatcher) unlink(target uint32) int32 {
	d.mu.Lock()
	t, ok := d.pending[target]
	if ok {
		delete(d.pending, target)
	}
	d.mu.Unlock()
	if !ok {
		return 0
	}
	t.Cancel()
	d.metrics.urbRetired(endpointLabel(t), outcomeLabel(statusFor(ErrCancelled)))
	level.Debug(d.logger).Log("msg", "cancelled in-flight urb", "seq", target)
	return statusFor(ErrCancelled)
}

// cancelAll cancels every transfer still pending, used when the owning
// connection is torn down.
func (d *dispatcher) cancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.pending {
		t.Cancel()
	}
}

// runWriter drains completion frames onto conn's write half until ctx is
// cancelled or writing fails. It is the single writer required by the
// write-serialization invariant: every byte slice it receives is already a
// fully framed response, written atomically via one Write call.
func (d *dispatcher) runWriter(ctx context.Context, write func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-d.frames:
			if err := write(frame); err != nil {
				return err
			}
		}
	}
}

// enqueue pushes a pre-framed response (e.g. a RET_UNLINK) directly onto
// the writer queue, bypassing submit/complete because no handler produced
// it.
func (d *dispatcher) enqueue(frame []byte) {
	d.frames <- frame
}
