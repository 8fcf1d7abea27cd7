package usbip

import "testing"

func TestRegistryLookups(t *testing.T) {
	reg := NewRegistry()
	a := NewDevice("1-1", 1, DeviceDescriptor{}, SpeedFull, nil)
	b := NewDevice("1-2", 2, DeviceDescriptor{}, SpeedFull, nil)
	reg.Register(a)
	reg.Register(b)

	if got, ok := reg.ByBusID("1-2"); !ok || got != b {
		t.Fatalf("ByBusID(1-2) = %v, %v", got, ok)
	}
	if got, ok := reg.ByDevID(1); !ok || got != a {
		t.Fatalf("ByDevID(1) = %v, %v", got, ok)
	}
	if _, ok := reg.ByBusID("9-9"); ok {
		t.Fatal("ByBusID should report false for an unregistered bus id")
	}
	if all := reg.All(); len(all) != 2 || all[0] != a || all[1] != b {
		t.Fatalf("All() = %v, want [a, b] in registration order", all)
	}
}
