package class

import (
	"github.com/go-kit/log"

	"github.com/MatthiasValvekens/usbip-device-plugin/usbip"
)

// CDC-ACM subclass/protocol codes and class-specific requests (USB CDC 1.2
// Spec, and the ACM subclass spec).
const (
	CDCSubClassACM = 0x02
	CDCProtocolAT  = 0x01

	CDCRequestSetLineCoding    = 0x20
	CDCRequestGetLineCoding    = 0x21
	CDCRequestSetControlState  = 0x22
)

// LineCoding mirrors the 7-byte SET_LINE_CODING/GET_LINE_CODING payload:
// baud rate, stop bits, parity, and data bits.
type LineCoding struct {
	BaudRate uint32
	StopBits uint8
	Parity   uint8
	DataBits uint8
}

func (l LineCoding) marshal() [7]byte {
	var b [7]byte
	b[0] = byte(l.BaudRate)
	b[1] = byte(l.BaudRate >> 8)
	b[2] = byte(l.BaudRate >> 16)
	b[3] = byte(l.BaudRate >> 24)
	b[4] = l.StopBits
	b[5] = l.Parity
	b[6] = l.DataBits
	return b
}

func unmarshalLineCoding(b []byte) LineCoding {
	if len(b) < 7 {
		return LineCoding{}
	}
	return LineCoding{
		BaudRate: uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24,
		StopBits: b[4],
		Parity:   b[5],
		DataBits: b[6],
	}
}

// SerialPort is a reference CDC-ACM handler servicing the data interface's
// bulk IN/OUT pair as a byte-for-byte loopback, and the communications
// interface's SET/GET_LINE_CODING control requests. A real device would
// instead bridge these endpoints to an actual serial backend.
type SerialPort struct {
	logger     log.Logger
	lineCoding LineCoding
	rx         chan byte // bytes written by the host (bulk OUT), read back (bulk IN)
}

// NewSerialPort builds a SerialPort handler. logger may be nil.
func NewSerialPort(logger log.Logger) *SerialPort {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SerialPort{
		logger:     log.With(logger, "component", "cdc-acm"),
		lineCoding: LineCoding{BaudRate: 9600, StopBits: 0, Parity: 0, DataBits: 8},
		rx:         make(chan byte, 4096),
	}
}

func (s *SerialPort) Init(iface *usbip.Interface) error { return nil }

func (s *SerialPort) HandleURB(ctx usbip.Canceller, ep *usbip.Endpoint, setup *usbip.SetupPacket, data []byte) (int, error) {
	if setup != nil {
		return s.handleControl(*setup, data)
	}
	switch {
	case ep.IsOut() && ep.IsBulk():
		for _, b := range data {
			select {
			case s.rx <- b:
			default:
				return 0, usbip.ErrStall // backpressure: host must retry
			}
		}
		return len(data), nil
	case ep.IsIn() && ep.IsBulk():
		n := 0
		for n < len(data) {
			select {
			case b := <-s.rx:
				data[n] = b
				n++
			case <-ctx.Done():
				return n, usbip.ErrCancelled
			default:
				return n, nil // short read: nothing more buffered right now
			}
		}
		return n, nil
	case ep.IsIn() && ep.IsInterrupt():
		// No unsolicited notifications modeled; block until cancelled.
		<-ctx.Done()
		return 0, usbip.ErrCancelled
	default:
		return 0, usbip.ErrStall
	}
}

func (s *SerialPort) handleControl(setup usbip.SetupPacket, data []byte) (int, error) {
	switch setup.Request {
	case CDCRequestSetLineCoding:
		s.lineCoding = unmarshalLineCoding(data)
		return len(data), nil
	case CDCRequestGetLineCoding:
		enc := s.lineCoding.marshal()
		n := copy(data, enc[:])
		return n, nil
	case CDCRequestSetControlState:
		return 0, nil
	default:
		return 0, usbip.ErrStall
	}
}

func (s *SerialPort) SetAlternate(iface *usbip.Interface, alt uint8) error {
	if alt != 0 {
		return usbip.ErrStall
	}
	return nil
}

func (s *SerialPort) Close() error {
	return nil
}
