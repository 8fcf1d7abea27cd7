package usbip

import "encoding/binary"

// StandardRequestHandler implements the nine standard USB requests entirely
// within the server, without consulting any device-class handler (§4.3).
type StandardRequestHandler struct {
	device      *Device
	responseBuf [512]byte
}

// NewStandardRequestHandler builds a handler bound to one device.
func NewStandardRequestHandler(d *Device) *StandardRequestHandler {
	return &StandardRequestHandler{device: d}
}

// HandleSetup attempts to service setup as a standard request. ok is false
// if the request type was not "standard" or the recipient combination is
// not one this handler claims (in which case the caller should try the
// owning interface's class handler instead). err is ErrStall for requests
// this handler recognizes but explicitly does not support (SET_DESCRIPTOR,
// an unsupported feature selector, an out-of-range descriptor index, etc).
func (h *StandardRequestHandler) HandleSetup(setup SetupPacket, data []byte) (resp []byte, ok bool, err error) {
	if !setup.IsStandard() {
		return nil, false, nil
	}
	switch setup.Recipient() {
	case RequestRecipientDevice:
		return h.handleDeviceRequest(setup, data)
	case RequestRecipientInterface:
		return h.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return h.handleEndpointRequest(setup)
	default:
		return nil, false, nil
	}
}

func (h *StandardRequestHandler) handleDeviceRequest(setup SetupPacket, data []byte) ([]byte, bool, error) {
	switch setup.Request {
	case RequestGetStatus:
		return h.getDeviceStatus(), true, nil
	case RequestClearFeature:
		return nil, true, h.setDeviceFeature(setup.Value, false)
	case RequestSetFeature:
		return nil, true, h.setDeviceFeature(setup.Value, true)
	case RequestSetAddress:
		// Accepted; the server does not store client-assigned addresses, it
		// only moves the device from Default to Address.
		if h.device.State() == StateDefault {
			h.device.setState(StateAddress)
		}
		return nil, true, nil
	case RequestGetDescriptor:
		resp, err := h.getDescriptor(setup)
		return resp, true, err
	case RequestSetDescriptor:
		return nil, true, ErrStall
	case RequestGetConfiguration:
		h.responseBuf[0] = h.device.CurrentConfigurationValue()
		return h.responseBuf[:1], true, nil
	case RequestSetConfiguration:
		return nil, true, h.device.SetConfiguration(uint8(setup.Value))
	default:
		return nil, false, nil
	}
}

func (h *StandardRequestHandler) getDeviceStatus() []byte {
	var status uint16
	if h.device.IsRemoteWakeupEnabled() {
		status |= 0x02
	}
	if cfg := h.device.ActiveConfiguration(); cfg != nil && cfg.SelfPowered {
		status |= 0x01
	}
	binary.LittleEndian.PutUint16(h.responseBuf[:2], status)
	return h.responseBuf[:2]
}

func (h *StandardRequestHandler) setDeviceFeature(feature uint16, enable bool) error {
	switch feature {
	case FeatureDeviceRemoteWakeup:
		h.device.EnableRemoteWakeup(enable)
		return nil
	default:
		return ErrStall
	}
}

func (h *StandardRequestHandler) getDescriptor(setup SetupPacket) ([]byte, error) {
	length := int(setup.Length)
	if length > len(h.responseBuf) {
		length = len(h.responseBuf)
	}
	switch setup.DescriptorType() {
	case DescriptorTypeDevice:
		n := h.device.Descriptor.MarshalTo(h.responseBuf[:])
		return truncate(h.responseBuf[:n], length), nil
	case DescriptorTypeConfiguration, DescriptorTypeOtherSpeedConfiguration:
		if setup.DescriptorType() == DescriptorTypeOtherSpeedConfiguration && h.device.Speed != SpeedHigh {
			return nil, ErrStall
		}
		index := setup.DescriptorIndex()
		configs := h.device.Configurations()
		if int(index) >= len(configs) {
			return nil, ErrStall
		}
		buf := make([]byte, 4096)
		n := configs[index].MarshalTo(buf)
		if setup.DescriptorType() == DescriptorTypeOtherSpeedConfiguration {
			buf[1] = DescriptorTypeOtherSpeedConfiguration
		}
		return truncate(buf[:n], length), nil
	case DescriptorTypeString:
		if setup.DescriptorIndex() == 0 {
			n := LanguageDescriptorTo(h.responseBuf[:], LangIDUSEnglish)
			return truncate(h.responseBuf[:n], length), nil
		}
		s, ok := h.device.GetString(setup.DescriptorIndex())
		if !ok {
			return nil, ErrStall
		}
		n := StringDescriptorTo(h.responseBuf[:], s)
		return truncate(h.responseBuf[:n], length), nil
	case DescriptorTypeDeviceQualifier:
		if h.device.Speed != SpeedHigh {
			return nil, ErrStall
		}
		// Device qualifier mirrors the device descriptor's identity fields
		// but describes the "other speed" configuration; bMaxPacketSize0
		// and bNumConfigurations are the only fields a real host inspects.
		h.responseBuf[0] = 10
		h.responseBuf[1] = DescriptorTypeDeviceQualifier
		binary.LittleEndian.PutUint16(h.responseBuf[2:4], h.device.Descriptor.BcdUSB)
		h.responseBuf[4] = h.device.Descriptor.BDeviceClass
		h.responseBuf[5] = h.device.Descriptor.BDeviceSubClass
		h.responseBuf[6] = h.device.Descriptor.BDeviceProtocol
		h.responseBuf[7] = h.device.Descriptor.BMaxPacketSize0
		h.responseBuf[8] = h.device.Descriptor.BNumConfigurations
		h.responseBuf[9] = 0
		return truncate(h.responseBuf[:10], length), nil
	default:
		return nil, ErrStall
	}
}

func (h *StandardRequestHandler) handleInterfaceRequest(setup SetupPacket) ([]byte, bool, error) {
	cfg := h.device.ActiveConfiguration()
	if cfg == nil {
		return nil, true, ErrStall
	}
	iface := cfg.GetInterface(setup.InterfaceNumber())
	if iface == nil {
		return nil, true, ErrStall
	}
	switch setup.Request {
	case RequestGetStatus:
		binary.LittleEndian.PutUint16(h.responseBuf[:2], 0)
		return h.responseBuf[:2], true, nil
	case RequestGetInterface:
		h.responseBuf[0] = iface.AlternateSetting
		return h.responseBuf[:1], true, nil
	case RequestSetInterface:
		alt := uint8(setup.Value)
		if h := iface.Handler(); h != nil {
			if err := h.SetAlternate(iface, alt); err != nil {
				return nil, true, err
			}
		}
		iface.AlternateSetting = alt
		for _, ep := range iface.Endpoints() {
			ep.ResetDataToggle()
			ep.SetStall(false)
		}
		return nil, true, nil
	default:
		return nil, false, nil
	}
}

func (h *StandardRequestHandler) handleEndpointRequest(setup SetupPacket) ([]byte, bool, error) {
	address := setup.EndpointAddress()
	if address == 0 || address == 0x80 {
		// EP0 never halts in a way the standard handler reports.
		switch setup.Request {
		case RequestGetStatus:
			binary.LittleEndian.PutUint16(h.responseBuf[:2], 0)
			return h.responseBuf[:2], true, nil
		case RequestClearFeature, RequestSetFeature:
			return nil, true, nil
		default:
			return nil, false, nil
		}
	}
	_, ep := h.device.FindEndpoint(address)
	if ep == nil {
		return nil, true, ErrStall
	}
	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if ep.IsStalled() {
			status = 0x01
		}
		binary.LittleEndian.PutUint16(h.responseBuf[:2], status)
		return h.responseBuf[:2], true, nil
	case RequestClearFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, true, ErrStall
		}
		ep.SetStall(false)
		ep.ResetDataToggle()
		return nil, true, nil
	case RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, true, ErrStall
		}
		ep.SetStall(true)
		return nil, true, nil
	case RequestSynchFrame:
		binary.LittleEndian.PutUint16(h.responseBuf[:2], 0)
		return h.responseBuf[:2], true, nil
	default:
		return nil, false, nil
	}
}

func truncate(buf []byte, length int) []byte {
	if length >= 0 && length < len(buf) {
		return buf[:length]
	}
	return buf
}
