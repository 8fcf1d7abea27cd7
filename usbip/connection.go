package usbip

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// connState is the per-connection state machine of §3 ("Connection state").
type connState int

const (
	connAwaitingOp connState = iota
	connDeviceListed
	connAttached
)

var connIDSeq uint64

// Connection is the per-connection protocol engine: it owns one TCP socket
// (or any io.ReadWriteCloser, so tests can substitute net.Pipe), runs the
// Phase 1 operation loop until an import succeeds, then runs the Phase 2
// URB loop for the remaining lifetime of the socket.
type Connection struct {
	id       string
	conn     io.ReadWriteCloser
	registry *Registry
	logger   log.Logger
	metrics  *Metrics

	state  connState
	device *Device
	disp   *dispatcher
	std    *StandardRequestHandler
}

// NewConnection wraps conn with the USB/IP protocol engine. metrics may be
// nil.
func NewConnection(conn io.ReadWriteCloser, registry *Registry, logger log.Logger, metrics *Metrics) *Connection {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	id := connID()
	return &Connection{
		id:       id,
		conn:     conn,
		registry: registry,
		logger:   log.With(logger, "component", "connection", "conn_id", id),
		metrics:  metrics,
		state:    connAwaitingOp,
	}
}

func connID() string {
	n := atomic.AddUint64(&connIDSeq, 1)
	return "conn-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Serve runs the connection's full lifetime: the Phase 1 loop, then (on a
// successful import) the Phase 2 loop, until ctx is cancelled, the client
// disconnects, or a framing error occurs. The connection is always closed
// before Serve returns.
func (c *Connection) Serve(ctx context.Context) error {
	defer func() {
		_ = c.conn.Close()
		if c.device != nil {
			c.device.MarkDetached(c.id)
		}
		if c.disp != nil {
			c.disp.cancelAll()
		}
	}()

	for c.state != connAttached {
		if err := c.serveOp(); err != nil {
			return err
		}
	}

	return c.servePhase2(ctx)
}

// serveOp handles exactly one Phase 1 operation frame.
func (c *Connection) serveOp() error {
	var hdr OpHeader
	if err := binary.Read(c.conn, binary.BigEndian, &hdr); err != nil {
		return err
	}
	if hdr.Version != ProtocolVersion {
		return ErrMalformedFrame
	}
	switch hdr.Code {
	case OpReqDevlist:
		return c.handleDevlist()
	case OpReqImport:
		return c.handleImport()
	default:
		level.Warn(c.logger).Log("msg", "unknown op code", "code", hdr.Code)
		return ErrUnknownOpCode
	}
}

func (c *Connection) handleDevlist() error {
	devices := c.registry.All()
	if err := binary.Write(c.conn, binary.BigEndian, OpHeader{Version: ProtocolVersion, Code: OpRepDevlist, Status: 0}); err != nil {
		return err
	}
	if err := binary.Write(c.conn, binary.BigEndian, uint32(len(devices))); err != nil {
		return err
	}
	for _, d := range devices {
		blk := d.DeviceBlock()
		if err := binary.Write(c.conn, binary.BigEndian, blk); err != nil {
			return err
		}
		for _, ib := range d.InterfaceBlocks() {
			if err := binary.Write(c.conn, binary.BigEndian, ib); err != nil {
				return err
			}
		}
	}
	c.state = connDeviceListed
	return nil
}

func (c *Connection) handleImport() error {
	var busIDBytes [32]byte
	if err := binary.Read(c.conn, binary.BigEndian, &busIDBytes); err != nil {
		return err
	}
	busID := trimNulls(busIDBytes[:])

	d, ok := c.registry.ByBusID(busID)
	if !ok {
		level.Info(c.logger).Log("msg", "import failed: unknown bus id", "bus_id", busID)
		return binary.Write(c.conn, binary.BigEndian, OpHeader{Version: ProtocolVersion, Code: OpRepImport, Status: 1})
	}
	if err := d.MarkAttached(c.id); err != nil {
		level.Info(c.logger).Log("msg", "import failed: already attached", "bus_id", busID)
		return binary.Write(c.conn, binary.BigEndian, OpHeader{Version: ProtocolVersion, Code: OpRepImport, Status: 1})
	}

	if err := binary.Write(c.conn, binary.BigEndian, OpHeader{Version: ProtocolVersion, Code: OpRepImport, Status: 0}); err != nil {
		return err
	}
	if err := binary.Write(c.conn, binary.BigEndian, d.DeviceBlock()); err != nil {
		return err
	}

	c.device = d
	c.std = NewStandardRequestHandler(d)
	c.disp = newDispatcher(d, c.logger, c.metrics, 16)
	c.state = connAttached
	level.Info(c.logger).Log("msg", "device imported", "bus_id", busID)
	return nil
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// servePhase2 runs the URB read loop and the single writer goroutine until
// ctx is cancelled or the connection errors.
func (c *Connection) servePhase2(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- c.disp.runWriter(ctx, c.writeFrame)
	}()

	readErrCh := make(chan error, 1)
	go func() {
		readErrCh <- c.readLoop(ctx)
	}()

	select {
	case err := <-readErrCh:
		cancel()
		<-writeErrCh
		return err
	case err := <-writeErrCh:
		cancel()
		<-readErrCh
		return err
	}
}

func (c *Connection) writeFrame(frame []byte) error {
	_, err := c.conn.Write(frame)
	return err
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		var hdr URBHeader
		if err := binary.Read(c.conn, binary.BigEndian, &hdr); err != nil {
			return err
		}
		switch hdr.Command {
		case CmdSubmit:
			if err := c.handleSubmit(ctx, hdr); err != nil {
				return err
			}
		case CmdUnlink:
			if err := c.handleUnlink(hdr); err != nil {
				return err
			}
		default:
			return errors.Newf("unexpected urb command 0x%x", hdr.Command)
		}
	}
}

func (c *Connection) handleSubmit(ctx context.Context, hdr URBHeader) error {
	var body SubmitBody
	if err := binary.Read(c.conn, binary.BigEndian, &body); err != nil {
		return err
	}

	var outBuf []byte
	if hdr.Direction == DirOut && body.TransferBufferLength > 0 {
		outBuf = make([]byte, body.TransferBufferLength)
		if _, err := io.ReadFull(c.conn, outBuf); err != nil {
			return err
		}
	}

	t := NewTransfer(ctx, hdr.SequenceNumber, hdr.DevID, hdr.Direction, hdr.Endpoint)
	setup, _ := ParseSetupPacket(body.Setup[:])
	if hdr.Endpoint == 0 {
		t.Setup = &setup
	}
	if hdr.Direction == DirIn {
		t.Buffer = make([]byte, body.TransferBufferLength)
	} else {
		t.Buffer = outBuf
	}

	c.disp.submit(t, func(t *Transfer) []byte {
		status, actual := c.execute(t)
		return c.frameRetSubmit(hdr, body, t, status, actual)
	})
	return nil
}

// execute routes a transfer to the standard handler, then the owning
// interface's class handler, returning the completion status and the
// number of bytes actually transferred.
func (c *Connection) execute(t *Transfer) (int32, int) {
	if t.Setup != nil {
		if resp, ok, err := c.std.HandleSetup(*t.Setup, t.Buffer); ok {
			if err != nil {
				return statusFor(err), 0
			}
			if t.Direction == DirIn {
				n := copy(t.Buffer, resp)
				return 0, n
			}
			return 0, len(t.Buffer)
		}
		// Not a request the standard handler claims: a class/vendor control
		// request on EP0, routed to the interface it names in wIndex.
		return c.executeControl(t)
	}

	iface, ep := c.device.FindEndpoint(endpointAddress(t.Endpoint, t.Direction))
	if ep == nil || iface == nil {
		return statusFor(ErrStall), 0
	}
	handler := iface.Handler()
	if handler == nil {
		return statusFor(ErrStall), 0
	}

	n, err := handler.HandleURB(t.Context(), ep, t.Setup, t.Buffer)
	if err != nil {
		return statusFor(err), n
	}
	ep.ToggleData()
	return 0, n
}

func (c *Connection) executeControl(t *Transfer) (int32, int) {
	cfg := c.device.ActiveConfiguration()
	if cfg == nil {
		return statusFor(ErrStall), 0
	}
	iface := cfg.GetInterface(t.Setup.InterfaceNumber())
	if iface == nil {
		return statusFor(ErrStall), 0
	}
	handler := iface.Handler()
	if handler == nil {
		return statusFor(ErrStall), 0
	}
	n, err := handler.HandleURB(t.Context(), &Endpoint{Address: 0}, t.Setup, t.Buffer)
	if err != nil {
		return statusFor(err), n
	}
	return 0, n
}

// endpointAddress reconstructs the full endpoint address (number + direction
// bit) from the URB header's separate endpoint and direction fields.
func endpointAddress(endpoint, direction uint32) uint8 {
	addr := uint8(endpoint & 0x0F)
	if direction == DirIn {
		addr |= EndpointDirectionIn
	}
	return addr
}

func (c *Connection) frameRetSubmit(hdr URBHeader, body SubmitBody, t *Transfer, status int32, actual int) []byte {
	t.Complete(status, actual)

	retHdr := URBHeader{Command: RetSubmit, SequenceNumber: hdr.SequenceNumber, DevID: hdr.DevID, Direction: hdr.Direction, Endpoint: hdr.Endpoint}
	retBody := RetSubmitBody{Status: status, ActualLength: uint32(actual)}

	buf := make([]byte, 0, 20+28+actual)
	buf = appendBigEndian(buf, retHdr)
	buf = appendBigEndian(buf, retBody)
	if hdr.Direction == DirIn {
		buf = append(buf, t.Buffer[:actual]...)
	}
	return buf
}

func (c *Connection) handleUnlink(hdr URBHeader) error {
	var body UnlinkBody
	if err := binary.Read(c.conn, binary.BigEndian, &body); err != nil {
		return err
	}
	status := c.disp.unlink(body.UnlinkSeqNum)

	retHdr := URBHeader{Command: RetUnlink, SequenceNumber: hdr.SequenceNumber, DevID: hdr.DevID, Direction: hdr.Direction, Endpoint: hdr.Endpoint}
	retBody := RetUnlinkBody{Status: status}

	buf := make([]byte, 0, 20+28)
	buf = appendBigEndian(buf, retHdr)
	buf = appendBigEndian(buf, retBody)
	c.disp.enqueue(buf)
	return nil
}

func appendBigEndian(buf []byte, v any) []byte {
	var scratch bytes.Buffer
	_ = binary.Write(&scratch, binary.BigEndian, v)
	return append(buf, scratch.Bytes()...)
}
