package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"
)

// ClipFileName builds the artifact name for one clip:
// "<sanitized device>_<UTC yyyy-MM-dd_HH-mm-ss>.mp4".
func ClipFileName(device AudioDevice, ts time.Time) string {
	return fmt.Sprintf("%s_%s.mp4",
		SanitizeDeviceName(device.String()),
		ts.UTC().Format("2006-01-02_15-04-05"))
}

func ffmpegPath() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found in PATH", ErrEncoder)
	}
	return path, nil
}

// encodeArgs is the fixed subprocess contract: raw f32le on stdin,
// AAC-LC at 64 kbit/s in a fast-start MP4 on disk.
func encodeArgs(sampleRate, channels int, outPath string) []string {
	if channels > 2 {
		channels = 2
	}
	return []string{
		"-f", "f32le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", "64k",
		"-profile:a", "aac_low",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-y", outPath,
	}
}

// EncodeFromChannel drains f32le byte batches from rx into an ffmpeg
// subprocess until duration elapses, isRunning clears or rx closes,
// then finalizes the file. A non-zero exit is an ErrEncoder.
func EncodeFromChannel(ctx context.Context, rx <-chan []byte, sampleRate, channels int, outPath string, isRunning *atomic.Bool, duration time.Duration) error {
	path, err := ffmpegPath()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, encodeArgs(sampleRate, channels, outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: open stdin: %v", ErrEncoder, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %v", ErrEncoder, err)
	}

	start := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

drain:
	for isRunning == nil || isRunning.Load() {
		select {
		case data, ok := <-rx:
			if !ok {
				break drain
			}
			if time.Since(start) >= duration {
				break drain
			}
			if _, err := stdin.Write(data); err != nil {
				break drain
			}
		case <-ticker.C:
			if time.Since(start) >= duration {
				break drain
			}
		case <-ctx.Done():
			break drain
		}
	}

	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrEncoder, err, stderr.String())
	}
	return nil
}

// EncodeClip encodes an in-memory clip in one shot.
func EncodeClip(samples []float32, sampleRate, channels int, outPath string) error {
	path, err := ffmpegPath()
	if err != nil {
		return err
	}

	cmd := exec.Command(path, encodeArgs(sampleRate, channels, outPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: open stdin: %v", ErrEncoder, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %v", ErrEncoder, err)
	}

	_, werr := io.Copy(stdin, bytes.NewReader(Float32Bytes(samples)))
	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrEncoder, err, stderr.String())
	}
	if werr != nil {
		return fmt.Errorf("%w: write samples: %v", ErrEncoder, werr)
	}
	return nil
}
