package audio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio input candidate for the -capture source.
type Device struct {
	Name            string
	HostAPI         string
	MaxInput        int
	DefaultSampleHz float64
	IsDefaultInput  bool
	IsLoopback      bool
}

var loopbackKeywords = []string{"monitor", "loopback", "mix", "stereo mix", "what u hear"}

func isLoopback(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ListDevices returns every device that can record, sorted by host and name.
func ListDevices() ([]Device, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	defer releasePortAudio()

	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	var defaultInputIndex = -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInputIndex = def.Index
	}

	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxInputChannels <= 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				HostAPI:         host.Name,
				MaxInput:        d.MaxInputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				IsDefaultInput:  d.Index == defaultInputIndex,
				IsLoopback:      isLoopback(d.Name),
			})
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})

	return devices, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findDeviceByName(name)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if candidate := pickBestDevice(devices); candidate != nil {
		return candidate, nil
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}
	return nil, fmt.Errorf("no suitable audio input device found")
}

func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		deviceName := strings.ToLower(device.Name)
		if strings.Contains(deviceName, name) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("audio device %q not found", name)
}

func pickBestDevice(devices []*portaudio.DeviceInfo) *portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}

	var results []scored

	var defaultInputIndex = -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInputIndex = def.Index
	}

	var defaultHostIndex = -1
	if host, err := portaudio.DefaultHostApi(); err == nil && host != nil && host.DefaultInputDevice != nil {
		defaultHostIndex = host.DefaultInputDevice.Index
	}

	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}

		score := d.MaxInputChannels

		if d.Index == defaultInputIndex {
			score += 50
		}
		if d.Index == defaultHostIndex {
			score += 40
		}

		if isLoopback(d.Name) {
			score += 20
		}

		if strings.Contains(strings.ToLower(d.Name), "default") {
			score += 10
		}

		results = append(results, scored{dev: d, score: score})
	}

	if len(results) == 0 {
		return nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})

	return results[0].dev
}
