// Package supervisor owns per-device capture lifecycles: it pairs a
// capture driver with a clip encoder in a loop, restarts failed
// devices with bounded backoff, and propagates shutdown.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/recall/pkg/audio"
	"github.com/lokutor-ai/recall/pkg/logging"
)

// DeviceControl is the per-device run state. Set by the supervisor;
// the capture driver reads Running and clears it when its stream dies.
type DeviceControl struct {
	Running atomic.Bool
	Paused  atomic.Bool
}

// DeviceStatus is a snapshot for status surfaces.
type DeviceStatus struct {
	Device    audio.AudioDevice
	Running   bool
	Paused    bool
	LastError string
}

// RecordFunc captures one clip. Swapped out in tests.
type RecordFunc func(ctx context.Context, device audio.AudioDevice, duration time.Duration, outPath string, isRunning *atomic.Bool, log logging.Logger) (*audio.Clip, error)

// SubmitFunc hands a finished clip to the transcription worker.
type SubmitFunc func(clip *audio.Clip) error

// Config wires a Supervisor.
type Config struct {
	Devices      []audio.AudioDevice
	ClipDuration time.Duration
	OutputDir    string
	Record       RecordFunc // defaults to audio.RecordClip
	Submit       SubmitFunc
	Logger       logging.Logger

	// Restart policy between failed clips.
	MaxRetries   int           // defaults to 5
	RetryBackoff time.Duration // defaults to 2s, doubled per retry
}

// Supervisor runs one capture loop per configured device.
type Supervisor struct {
	cfg      Config
	mu       sync.Mutex
	controls map[string]*DeviceControl
	lastErr  map[string]string
	stopping atomic.Bool
	wg       sync.WaitGroup
}

// New validates the config and builds a Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}
	if cfg.Submit == nil {
		return nil, fmt.Errorf("submit function is required")
	}
	if cfg.Record == nil {
		cfg.Record = audio.RecordClip
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoOpLogger{}
	}
	if cfg.ClipDuration <= 0 {
		cfg.ClipDuration = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Supervisor{
		cfg:      cfg,
		controls: make(map[string]*DeviceControl),
		lastErr:  make(map[string]string),
	}, nil
}

// Start launches the capture loops.
func (s *Supervisor) Start(ctx context.Context) {
	for _, dev := range s.cfg.Devices {
		ctl := &DeviceControl{}
		ctl.Running.Store(true)
		s.mu.Lock()
		s.controls[dev.String()] = ctl
		s.mu.Unlock()

		s.wg.Add(1)
		go func(dev audio.AudioDevice, ctl *DeviceControl) {
			defer s.wg.Done()
			s.runDevice(ctx, dev, ctl)
		}(dev, ctl)
	}
}

func (s *Supervisor) runDevice(ctx context.Context, dev audio.AudioDevice, ctl *DeviceControl) {
	log := s.cfg.Logger
	retries := 0

	for ctl.Running.Load() && ctx.Err() == nil {
		if ctl.Paused.Load() {
			s.sleep(ctx, time.Second)
			continue
		}

		captureID := uuid.NewString()[:8]
		outPath := filepath.Join(s.cfg.OutputDir,
			fmt.Sprintf("%s_%s.mp4", audio.SanitizeDeviceName(dev.String()), captureID))

		log.Debug("starting clip", "device", dev.String(), "capture_id", captureID, "path", outPath)
		clip, err := s.cfg.Record(ctx, dev, s.cfg.ClipDuration, outPath, &ctl.Running, log)
		if err != nil {
			retries++
			s.setLastError(dev, err.Error())
			log.Error("capture failed",
				"device", dev.String(), "capture_id", captureID, "attempt", retries, "error", err)
			if retries > s.cfg.MaxRetries {
				log.Error("giving up on device", "device", dev.String())
				ctl.Running.Store(false)
				return
			}
			if s.stopping.Load() {
				return
			}
			// device may come back; re-arm the flag the stream
			// callback cleared
			ctl.Running.Store(true)
			s.sleep(ctx, s.cfg.RetryBackoff*time.Duration(1<<(retries-1)))
			continue
		}
		retries = 0
		s.setLastError(dev, "")

		if len(clip.Samples) == 0 {
			continue
		}
		if err := s.cfg.Submit(clip); err != nil {
			log.Warn("worker rejected clip, stopping device",
				"device", dev.String(), "error", err)
			return
		}
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Supervisor) setLastError(dev audio.AudioDevice, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr[dev.String()] = msg
}

// Pause suspends capture for one device without tearing the loop
// down.
func (s *Supervisor) Pause(device audio.AudioDevice) {
	if ctl := s.control(device); ctl != nil {
		ctl.Paused.Store(true)
	}
}

// Resume lifts a pause.
func (s *Supervisor) Resume(device audio.AudioDevice) {
	if ctl := s.control(device); ctl != nil {
		ctl.Paused.Store(false)
	}
}

func (s *Supervisor) control(device audio.AudioDevice) *DeviceControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls[device.String()]
}

// Status snapshots every device's state.
func (s *Supervisor) Status() []DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]DeviceStatus, 0, len(s.cfg.Devices))
	for _, dev := range s.cfg.Devices {
		ctl := s.controls[dev.String()]
		st := DeviceStatus{Device: dev, LastError: s.lastErr[dev.String()]}
		if ctl != nil {
			st.Running = ctl.Running.Load()
			st.Paused = ctl.Paused.Load()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// Shutdown clears every running flag and waits for the capture loops
// to drain, bounded by ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopping.Store(true)
	s.mu.Lock()
	for _, ctl := range s.controls {
		ctl.Running.Store(false)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
