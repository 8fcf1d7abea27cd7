package usbip

import (
	"context"
	"sync"
	"sync/atomic"
)

// Transfer is the URB-in-flight record (§3): created on receipt of
// USBIP_CMD_SUBMIT, it lives until either its completion is handed to the
// connection's writer or a USBIP_CMD_UNLINK cancels it.
type Transfer struct {
	SeqNum    uint32
	DevID     uint32
	Direction uint32 // DirIn or DirOut, as carried on the wire
	Endpoint  uint32 // raw wIndex-style endpoint field from the URB header

	Setup  *SetupPacket // nil for bulk/interrupt/iso
	Buffer []byte        // OUT: received payload; IN: capacity to fill

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	completed bool
	cancelled uint32

	Status int32
	Actual int
}

// NewTransfer creates a Transfer whose context is derived from parent, so
// that cancelling the owning connection cancels every in-flight transfer on
// it at once.
func NewTransfer(parent context.Context, seq, devID, direction, endpoint uint32) *Transfer {
	ctx, cancel := context.WithCancel(parent)
	return &Transfer{SeqNum: seq, DevID: devID, Direction: direction, Endpoint: endpoint, ctx: ctx, cancel: cancel}
}

// Context returns the transfer's cancellation context, passed to the
// endpoint handler.
func (t *Transfer) Context() context.Context { return t.ctx }

// Cancel requests that the transfer's handler abandon its work. It is safe
// to call more than once; only the first call has effect.
func (t *Transfer) Cancel() bool {
	first := atomic.CompareAndSwapUint32(&t.cancelled, 0, 1)
	if first {
		t.cancel()
	}
	return first
}

// IsCancelled reports whether Cancel has been called on this transfer.
func (t *Transfer) IsCancelled() bool { return atomic.LoadUint32(&t.cancelled) != 0 }

// Complete idempotently marks the transfer finished, recording its status
// and actual length. Returns false if the transfer was already completed
// (by a prior Complete call racing with this one).
func (t *Transfer) Complete(status int32, actual int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return false
	}
	t.completed = true
	t.Status = status
	t.Actual = actual
	t.cancel()
	return true
}

// IsCompleted reports whether Complete has already run for this transfer.
func (t *Transfer) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}
