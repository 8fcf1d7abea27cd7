package main

import (
	"fmt"

	"github.com/go-kit/log"

	"github.com/MatthiasValvekens/usbip-device-plugin/class"
	"github.com/MatthiasValvekens/usbip-device-plugin/usbip"
)

// buildRegistry constructs one usbip.Device per DeviceSpec and attaches the
// reference class handler its Class names, then returns a Registry holding
// all of them.
func buildRegistry(specs []DeviceSpec, logger log.Logger, metrics *usbip.Metrics) (*usbip.Registry, error) {
	reg := usbip.NewRegistry()
	for i, spec := range specs {
		dev, err := buildDevice(spec, uint32(i+1), logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to build device %q: %w", spec.BusID, err)
		}
		reg.Register(dev)
	}
	return reg, nil
}

func parseSpeed(s string) usbip.Speed {
	switch s {
	case "low":
		return usbip.SpeedLow
	case "high":
		return usbip.SpeedHigh
	case "super":
		return usbip.SpeedSuper
	default:
		return usbip.SpeedFull
	}
}

func buildDevice(spec DeviceSpec, devID uint32, logger log.Logger, metrics *usbip.Metrics) (*usbip.Device, error) {
	speed := parseSpeed(spec.Speed)
	desc := usbip.DeviceDescriptor{
		BcdUSB:             0x0200,
		IDVendor:           spec.VendorID,
		IDProduct:          spec.ProductID,
		BcdDevice:          spec.BcdDevice,
		IManufacturer:      1,
		IProduct:           2,
		ISerialNumber:      3,
		BNumConfigurations: 1,
	}

	dev := usbip.NewDevice(spec.BusID, devID, desc, speed, logger)
	dev.SetMetrics(metrics)
	dev.Path = "/sys/devices/simulated/" + spec.BusID
	dev.BusNum = devID
	dev.DevNum = 1
	dev.SetString(1, "usbip-device-plugin")
	dev.SetString(2, spec.Class)
	dev.SetString(3, spec.BusID)

	cfg := usbip.NewConfiguration(1)
	cfg.MaxPower = 50 // 100mA, in 2mA units

	switch spec.Class {
	case "hid-keyboard":
		desc.BDeviceClass = usbip.ClassPerInterface
		iface := usbip.NewInterface(0, usbip.ClassHID, 1 /* boot interface */, 1 /* keyboard */)
		iface.AddEndpoint(usbip.NewEndpoint(0x81, usbip.EndpointTypeInterrupt, 8, 10))
		handler := class.NewKeyboard(logger)
		if err := iface.SetHandler(handler); err != nil {
			return nil, err
		}
		cfg.AddInterface(iface)
	case "cdc-acm":
		desc.BDeviceClass = usbip.ClassCDC
		handler := class.NewSerialPort(logger)

		control := usbip.NewInterface(0, usbip.ClassCDC, 0x02 /* ACM */, 0x01 /* AT */)
		control.AddEndpoint(usbip.NewEndpoint(0x83, usbip.EndpointTypeInterrupt, 8, 10))
		if err := control.SetHandler(handler); err != nil {
			return nil, err
		}
		cfg.AddInterface(control)

		data := usbip.NewInterface(1, usbip.ClassCDCData, 0, 0)
		data.AddEndpoint(usbip.NewEndpoint(0x01, usbip.EndpointTypeBulk, 64, 0))
		data.AddEndpoint(usbip.NewEndpoint(0x82, usbip.EndpointTypeBulk, 64, 0))
		if err := data.SetHandler(handler); err != nil {
			return nil, err
		}
		cfg.AddInterface(data)

		cfg.AddAssociation(usbip.InterfaceAssociationDescriptor{
			BFirstInterface: 0,
			BInterfaceCount: 2,
			BFunctionClass:  usbip.ClassCDC,
		})
	default:
		return nil, fmt.Errorf("unknown device class %q", spec.Class)
	}

	dev.Descriptor.BDeviceClass = desc.BDeviceClass
	dev.AddConfiguration(cfg)
	return dev, nil
}
