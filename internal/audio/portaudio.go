package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

type portAudioDevice struct{}

// NewPortAudio initializes PortAudio and returns a Device backed by it.
// Close must be called to terminate the library.
func NewPortAudio() (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioDevice{}, nil
}

func (p *portAudioDevice) Open(params StreamParams) (Stream, error) {
	device, err := findInputDevice(params.DeviceID)
	if err != nil {
		return nil, err
	}

	buffer := make([]int16, params.FrameSize*params.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: params.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.FrameSize,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	return &portAudioStream{stream: stream, buffer: buffer}, nil
}

func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (p *portAudioDevice) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioDevice) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream *portaudio.Stream
	buffer []int16
}

func (s *portAudioStream) Read() ([]int16, bool, error) {
	overflowed := false
	if err := s.stream.Read(); err != nil {
		if err != portaudio.InputOverflowed {
			return nil, false, err
		}
		overflowed = true
	}

	// The stream reuses buffer on every read
	frame := make([]int16, len(s.buffer))
	copy(frame, s.buffer)
	return frame, overflowed, nil
}

func (s *portAudioStream) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
