package usbip

import "testing"

func TestStandardRequestHandlerGetDeviceDescriptor(t *testing.T) {
	d := newTestDevice(t)
	h := NewStandardRequestHandler(d)

	setup := SetupPacket{RequestType: 0x80, Request: RequestGetDescriptor, Value: uint16(DescriptorTypeDevice) << 8, Length: 18}
	resp, ok, err := h.HandleSetup(setup, make([]byte, 18))
	if !ok || err != nil {
		t.Fatalf("HandleSetup(GET_DESCRIPTOR Device) = ok=%v err=%v", ok, err)
	}
	if len(resp) != DeviceDescriptorSize {
		t.Fatalf("response length = %d, want %d", len(resp), DeviceDescriptorSize)
	}
	if resp[0] != DeviceDescriptorSize || resp[1] != DescriptorTypeDevice {
		t.Errorf("unexpected header bytes: %v", resp[:2])
	}
}

func TestStandardRequestHandlerSetGetConfiguration(t *testing.T) {
	d := newTestDevice(t)
	h := NewStandardRequestHandler(d)

	setSetup := SetupPacket{RequestType: 0x00, Request: RequestSetConfiguration, Value: 1}
	if _, ok, err := h.HandleSetup(setSetup, nil); !ok || err != nil {
		t.Fatalf("SET_CONFIGURATION(1): ok=%v err=%v", ok, err)
	}

	getSetup := SetupPacket{RequestType: 0x80, Request: RequestGetConfiguration, Length: 1}
	resp, ok, err := h.HandleSetup(getSetup, make([]byte, 1))
	if !ok || err != nil {
		t.Fatalf("GET_CONFIGURATION: ok=%v err=%v", ok, err)
	}
	if len(resp) != 1 || resp[0] != 1 {
		t.Errorf("GET_CONFIGURATION response = %v, want [1]", resp)
	}
}

func TestStandardRequestHandlerSetDescriptorStalls(t *testing.T) {
	d := newTestDevice(t)
	h := NewStandardRequestHandler(d)
	setup := SetupPacket{RequestType: 0x00, Request: RequestSetDescriptor}
	_, ok, err := h.HandleSetup(setup, nil)
	if !ok || err != ErrStall {
		t.Fatalf("SET_DESCRIPTOR: ok=%v err=%v, want ok=true err=ErrStall", ok, err)
	}
}

func TestStandardRequestHandlerEndpointHalt(t *testing.T) {
	d := newTestDevice(t)
	if err := d.SetConfiguration(1); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}
	h := NewStandardRequestHandler(d)

	setFeature := SetupPacket{RequestType: 0x02, Request: RequestSetFeature, Value: FeatureEndpointHalt, Index: 0x81}
	if _, ok, err := h.HandleSetup(setFeature, nil); !ok || err != nil {
		t.Fatalf("SET_FEATURE(ENDPOINT_HALT): ok=%v err=%v", ok, err)
	}

	_, ep := d.FindEndpoint(0x81)
	if !ep.IsStalled() {
		t.Fatal("endpoint should be stalled after SET_FEATURE(ENDPOINT_HALT)")
	}

	clearFeature := SetupPacket{RequestType: 0x02, Request: RequestClearFeature, Value: FeatureEndpointHalt, Index: 0x81}
	if _, ok, err := h.HandleSetup(clearFeature, nil); !ok || err != nil {
		t.Fatalf("CLEAR_FEATURE(ENDPOINT_HALT): ok=%v err=%v", ok, err)
	}
	if ep.IsStalled() {
		t.Fatal("endpoint should not be stalled after CLEAR_FEATURE(ENDPOINT_HALT)")
	}
}

func TestStandardRequestHandlerNonStandardRequestNotClaimed(t *testing.T) {
	d := newTestDevice(t)
	h := NewStandardRequestHandler(d)
	setup := SetupPacket{RequestType: 0xA1, Request: 0x01} // class, device-to-host
	_, ok, _ := h.HandleSetup(setup, nil)
	if ok {
		t.Fatal("a class request should not be claimed by the standard handler")
	}
}
