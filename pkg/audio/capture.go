package audio

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/recall/pkg/logging"
)

// Clip is one bounded-duration slice of captured audio. Created by
// the capture driver, consumed by the transcription worker.
type Clip struct {
	Device     AudioDevice
	Samples    []float32
	SampleRate int
	Channels   int
	Path       string
}

// Duration reports the clip length implied by its sample count.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// runFlag is a non-owning view of the supervisor's running flag. The
// stream callback reads through it but never extends the owner's
// lifetime: once the device is uninitialized no callback can fire, so
// the supervisor alone decides when the flag goes away.
type runFlag struct {
	flag *atomic.Bool
}

func (f runFlag) running() bool {
	return f.flag != nil && f.flag.Load()
}

func (f runFlag) clear() {
	if f.flag != nil {
		f.flag.Store(false)
	}
}

var macosVersionOnce = sync.OnceValue(func() int {
	out, err := exec.Command("sw_vers", "-productVersion").Output()
	if err != nil {
		return 0
	}
	major, _, _ := strings.Cut(strings.TrimSpace(string(out)), ".")
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return v
})

// resolveDevice picks the malgo device type and concrete device id
// for the requested endpoint. Output devices are captured in
// loopback, except the pre-Sequoia macOS "Display" devices which are
// exposed on the capture side by the screen-capture host.
func resolveDevice(mctx *malgo.AllocatedContext, device AudioDevice) (malgo.DeviceType, *malgo.DeviceID, error) {
	devType := malgo.Capture
	enumType := malgo.Capture
	if device.Kind == KindOutput {
		devType = malgo.Loopback
		enumType = malgo.Playback
		if runtime.GOOS == "darwin" && strings.Contains(device.Name, "Display") && macosVersionOnce() < 15 {
			devType = malgo.Capture
			enumType = malgo.Capture
		}
	}

	if device.Name == "default" {
		return devType, nil, nil
	}

	infos, err := mctx.Devices(enumType)
	if err != nil {
		return devType, nil, fmt.Errorf("%w: list devices: %v", ErrDevice, err)
	}
	for _, info := range infos {
		if info.Name() == device.Name {
			id := info.ID
			return devType, &id, nil
		}
	}
	return devType, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
}

// RecordClip opens the device, streams one clip of at most duration
// into outPath through the clip encoder, and returns the in-memory
// samples alongside the file path. It stops early when isRunning
// clears or the stream dies; a dead stream also clears isRunning so
// peers observe the failure.
func RecordClip(ctx context.Context, device AudioDevice, duration time.Duration, outPath string, isRunning *atomic.Bool, log logging.Logger) (*Clip, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDevice, err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	devType, devID, err := resolveDevice(mctx, device)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(devType)
	cfg.Capture.Format = malgo.FormatUnknown // native, converted below
	cfg.Capture.Channels = 0
	cfg.SampleRate = 0
	cfg.Alsa.NoMMap = 1
	if devID != nil {
		cfg.Capture.DeviceID = devID.Pointer()
	}

	flag := runFlag{flag: isRunning}
	sink := make(chan []byte, 100)

	var (
		mu       sync.Mutex
		samples  []float32
		format   malgo.FormatType
		capture  atomic.Bool
		overruns atomic.Int64
	)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			if !capture.Load() || !flag.running() || len(in) == 0 {
				return
			}
			decoded, derr := DecodeSamples(format, in)
			if derr != nil {
				log.Error("dropping unreadable frames", "device", device.String(), "error", derr)
				return
			}
			mu.Lock()
			samples = append(samples, decoded...)
			mu.Unlock()
			select {
			case sink <- Float32Bytes(decoded):
			default:
				// encoder is behind; dropping is better than
				// blocking the stream thread
				overruns.Add(1)
			}
		},
		Stop: func() {
			if capture.Load() {
				log.Warn("audio stream stopped unexpectedly", "device", device.String())
				flag.clear()
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: init %s: %v", ErrDevice, device, err)
	}
	defer dev.Uninit()

	format = dev.CaptureFormat()
	sampleRate := int(dev.SampleRate())
	channels := int(dev.CaptureChannels())
	log.Debug("capture stream opened",
		"device", device.String(), "sample_rate", sampleRate, "channels", channels, "format", format)

	encDone := make(chan error, 1)
	go func() {
		encDone <- EncodeFromChannel(ctx, sink, sampleRate, channels, outPath, isRunning, duration)
	}()

	capture.Store(true)
	if err := dev.Start(); err != nil {
		capture.Store(false)
		close(sink)
		<-encDone
		return nil, fmt.Errorf("%w: start %s: %v", ErrDevice, device, err)
	}

	encErr := <-encDone

	capture.Store(false)
	_ = dev.Stop()

	if n := overruns.Load(); n > 0 {
		log.Warn("encoder overruns during clip", "device", device.String(), "batches_dropped", n)
	}
	if encErr != nil {
		return nil, encErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	mu.Lock()
	captured := samples
	samples = nil
	mu.Unlock()

	return &Clip{
		Device:     device,
		Samples:    captured,
		SampleRate: sampleRate,
		Channels:   channels,
		Path:       outPath,
	}, nil
}
