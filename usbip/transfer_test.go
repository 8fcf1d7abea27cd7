package usbip

import (
	"context"
	"testing"
)

func TestTransferCompleteIsIdempotent(t *testing.T) {
	tr := NewTransfer(context.Background(), 1, 1, DirIn, 1)
	if !tr.Complete(0, 4) {
		t.Fatal("first Complete should succeed")
	}
	if tr.Complete(-1, 0) {
		t.Fatal("second Complete should be a no-op")
	}
	if tr.Status != 0 || tr.Actual != 4 {
		t.Fatalf("Status/Actual changed by the no-op Complete: %+v", tr)
	}
}

func TestTransferCancelIsIdempotentAndObservable(t *testing.T) {
	tr := NewTransfer(context.Background(), 1, 1, DirIn, 1)
	if !tr.Cancel() {
		t.Fatal("first Cancel should succeed")
	}
	if tr.Cancel() {
		t.Fatal("second Cancel should be a no-op")
	}
	select {
	case <-tr.Context().Done():
	default:
		t.Fatal("transfer context should be cancelled")
	}
}

func TestTransferCompleteAfterCancelStillRecordsResult(t *testing.T) {
	tr := NewTransfer(context.Background(), 1, 1, DirIn, 1)
	tr.Cancel()
	if !tr.Complete(statusFor(ErrCancelled), 0) {
		t.Fatal("Complete after Cancel should still succeed exactly once")
	}
	if !tr.IsCompleted() {
		t.Fatal("IsCompleted should report true")
	}
}
