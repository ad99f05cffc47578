package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

const (
	// serviceScript wraps the MediaPipe hand landmarker.
	serviceScript = "hand_landmarker_service.py"
	// idleShutdown stops the service after this long without a request.
	idleShutdown = 30 * time.Second
)

// MediaPipeDetector runs the MediaPipe hand landmarker in a Python
// subprocess that is started on first use and stopped when idle.
//
// Each request is a 4-byte big-endian length followed by a JPEG frame on
// the service's stdin. Each response is one JSON line on its stdout.
type MediaPipeDetector struct {
	mu     sync.Mutex
	config Config
	script string
	python string
	proc   *landmarkerProcess
	idle   *time.Timer
}

var _ Detector = (*MediaPipeDetector)(nil)

// NewMediaPipeDetector locates the service script and an interpreter. It
// does not start the service.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	dirs := searchDirs()
	script := locate(dirs, "scripts", serviceScript)
	if script == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}
	python := locate(dirs, "venv", "bin", "python")
	if python == "" {
		python = "python3"
	}
	return &MediaPipeDetector{config: config, script: script, python: python}, nil
}

// Detect sends frame to the service and returns the hands it reports.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.proc == nil {
		proc, err := startLandmarker(d.python, d.args())
		if err != nil {
			return nil, err
		}
		d.proc = proc
	}

	line, err := d.proc.roundTrip(buf.GetBytes())
	if err != nil {
		d.stopLocked()
		return nil, err
	}
	d.touchLocked()
	return parseResponse(line)
}

// Close stops the service if it is running.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeDetector) args() []string {
	ftoa := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	return []string{
		d.script,
		"--model", d.config.ModelAsset,
		"--num-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", ftoa(d.config.MinDetectionConf),
		"--min-tracking-confidence", ftoa(d.config.MinTrackingConf),
		"--min-presence-confidence", ftoa(d.config.MinPresenceConf),
		"--threads", strconv.Itoa(d.config.Threads),
	}
}

func (d *MediaPipeDetector) touchLocked() {
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idle = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stopLocked()
	})
}

func (d *MediaPipeDetector) stopLocked() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.proc == nil {
		return nil
	}
	err := d.proc.stop()
	d.proc = nil
	return err
}

// landmarkerProcess is one running instance of the service.
type landmarkerProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func startLandmarker(python string, args []string) (*landmarkerProcess, error) {
	cmd := exec.Command(python, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = stderrLog{}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmarker service: %w", err)
	}
	logger.Default().Debugf("landmarker service started, pid %d", cmd.Process.Pid)
	return &landmarkerProcess{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

func (p *landmarkerProcess) roundTrip(jpeg []byte) ([]byte, error) {
	msg := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(jpeg)), uint32(len(jpeg)))
	if _, err := p.stdin.Write(append(msg, jpeg...)); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	line, err := p.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

func (p *landmarkerProcess) stop() error {
	p.stdin.Close()
	err := p.cmd.Wait()
	logger.Default().Debugf("landmarker service stopped: %v", err)
	return err
}

// stderrLog forwards service diagnostics to the logger.
type stderrLog struct{}

func (stderrLog) Write(p []byte) (int, error) {
	logger.Default().Warnf("landmarker service: %s", p)
	return len(p), nil
}

// parseResponse decodes one service response line. Points are kept as
// reported; a hand with the wrong number of points is rejected later by
// tensor assembly rather than padded here.
func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []HandLandmarks `json:"hands"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("landmarker service: %s", response.Error)
	}
	return response.Hands, nil
}

// searchDirs lists the roots searched for the service and its virtualenv.
func searchDirs() []string {
	dirs := []string{".", "..", filepath.Join("..", "..")}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".mudra"))
	}
	return dirs
}

// locate returns the absolute path of the first dir/elem... that exists.
func locate(dirs []string, elem ...string) string {
	for _, dir := range dirs {
		path := filepath.Join(append([]string{dir}, elem...)...)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}
