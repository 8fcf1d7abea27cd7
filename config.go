// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultListenAddr = ":3240"
const defaultHealthAddr = ":8080"

// DeviceSpec describes one simulated device to register at startup, as
// decoded from the "devices" section of the config file.
type DeviceSpec struct {
	BusID     string `json:"bus_id"`
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	BcdDevice uint16 `json:"bcd_device"`
	Speed     string `json:"speed"`
	Class     string `json:"class"` // "hid-keyboard" or "cdc-acm"
}

// initConfig defines config flags, config file, and envs.
func initConfig() error {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.String("listen", defaultListenAddr, "The address at which to listen for USB/IP client connections.")
	flag.String("health-listen", defaultHealthAddr, "The address at which to listen for health and metrics.")
	flag.String("log-level", logLevelInfo, fmt.Sprintf("Log level to use. Possible values: %s", availableLogLevels))

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/usbip-server/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; fall back to defaults/flags/env only.
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// getConfiguredDevices decodes the "devices" list from config into
// DeviceSpecs, the way the teacher's getConfiguredDevices decodes its
// "resources" map: mapstructure over whatever viper already parsed from
// YAML/env, tagged with "json" so the same struct can also come from JSON.
func getConfiguredDevices() ([]DeviceSpec, error) {
	raw := viper.Get("devices")
	if raw == nil {
		return defaultDeviceSpecs(), nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("failed to decode devices: unexpected type: %T", raw)
	}

	specs := make([]DeviceSpec, len(items))
	for i, item := range items {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &specs[i],
			TagName: "json",
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(item); err != nil {
			return nil, fmt.Errorf("failed to decode device data %v: %w", item, err)
		}
	}
	return specs, nil
}

// defaultDeviceSpecs is served when no "devices" config section is present,
// so the server is immediately useful out of the box.
func defaultDeviceSpecs() []DeviceSpec {
	return []DeviceSpec{
		{BusID: "1-1", VendorID: 0x1209, ProductID: 0x0001, Speed: "full", Class: "hid-keyboard"},
	}
}
