package audio

// Device opens blocking PCM input streams
type Device interface {
	Open(params StreamParams) (Stream, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// Stream is a live, blocking source of fixed-size int16 frames
type Stream interface {
	// Read blocks until the next frame is available. The returned slice holds
	// FrameSize*Channels interleaved samples and is owned by the caller.
	// overflowed reports that the device dropped input before this frame.
	Read() (frame []int16, overflowed bool, err error)
	Close() error
}

// StreamParams configures an input stream
type StreamParams struct {
	DeviceID   string
	SampleRate int
	Channels   int
	FrameSize  int
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
