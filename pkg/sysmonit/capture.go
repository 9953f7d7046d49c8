//go:build cgo
// +build cgo

package sysmonit

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

const (
	// readWatchdogTimeout bounds a single native_read() attempt (spec.md §4.1).
	readWatchdogTimeout = 6 * time.Second
	// freezeTimeout is how long a reader may go without a new frame before
	// the capture reports itself frozen (spec.md §4.1/§10 glossary).
	freezeTimeout = 10 * time.Second
	// readWaitTimeout bounds how long read() waits on the frame queue
	// before falling back to the last good frame (spec.md §4.1/§5).
	readWaitTimeout = 1 * time.Second
	// closeDrainTimeout is the generous wait close() gives the reader
	// thread to return from native_read() before giving up (spec.md §4.1).
	closeDrainTimeout = 8 * time.Second
	// frameQueueCapacity is the single-writer/single-reader ring size
	// (spec.md §4.1: capacity 1-3, drop-oldest when full).
	frameQueueCapacity = 3
)

// Frame is one decoded BGR video frame handed from BufferedCapture to the
// rest of the pipeline, along with its capture timestamp.
type Frame struct {
	Mat       gocv.Mat
	CapturedAt time.Time
}

// ErrFrozen is returned by Read when the reader has produced at least one
// frame but none for longer than freezeTimeout — fatal for the capture
// instance (spec.md §4.1). The supervisor must construct a new
// BufferedCapture.
var ErrFrozen = fmt.Errorf("sysmonit: capture frozen")

// ErrNoData is returned by Read when the queue is empty, the reader has
// not yet produced a frame, and there is no last-good frame to fall back
// to.
var ErrNoData = fmt.Errorf("sysmonit: no frame available")

// BufferedCapture opens an RTSP stream via OpenCV's FFmpeg backend and
// exposes the most recently decoded frame through a bounded, drop-oldest
// ring buffer. A dedicated reader goroutine is the only one that starts
// native Read calls on the handle (each on its own watchdog goroutine);
// Close releases the handle only once the reader and every in-flight
// native read have actually returned (spec.md §4.1/§5). The supervisor
// calls Close from its background finalizer on stop.
//
// Grounded on the teacher's pkg/miface/camera_gocv.go (mutex-guarded gocv
// VideoCapture wrapper), generalized from a local V4L2 webcam to an RTSP
// network source, with the reader/watchdog/freeze-timeout shape adapted
// from the FFmpeg process lifecycle pattern in birdnet-go's
// internal/myaudio/ffmpeg_input.go.
type BufferedCapture struct {
	url string

	mu       sync.Mutex
	video    *gocv.VideoCapture
	lastGood *Frame

	frames chan Frame
	stop   chan struct{}

	readerDone chan struct{}
	// inflight tracks native_read() goroutines spawned by the
	// read-watchdog that have not yet returned; Close waits on it before
	// releasing the native handle.
	inflight sync.WaitGroup

	lastNewFrame atomic.Value // time.Time
	gotFrame     atomic.Bool
	closed       atomic.Bool
}

// OpenBufferedCapture opens url with an FFmpeg-style RTSP backend: TCP
// transport preferred, a 5 s receive timeout, low-delay decoding, and
// corrupted packets discarded (spec.md §4.1), then starts the reader
// goroutine.
func OpenBufferedCapture(url string) (*BufferedCapture, error) {
	// gocv has no per-capture property for these options, so they are
	// handed to OpenCV's FFmpeg backend through the environment variable
	// it reads on open. A value already set in the environment is kept.
	if _, ok := os.LookupEnv("OPENCV_FFMPEG_CAPTURE_OPTIONS"); !ok {
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS",
			"rtsp_transport;tcp|timeout;5000000|fflags;nobuffer+discardcorrupt|flags;low_delay")
	}

	video, err := gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("opening rtsp stream %q: %w", url, err)
	}
	if !video.IsOpened() {
		video.Close()
		return nil, fmt.Errorf("rtsp stream %q did not open", url)
	}

	bc := &BufferedCapture{
		url:        url,
		video:      video,
		frames:     make(chan Frame, frameQueueCapacity),
		stop:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	bc.lastNewFrame.Store(time.Now())

	go bc.readLoop()

	return bc, nil
}

// readLoop is the sole goroutine that starts bc.video.Read calls, each
// through nativeReadWithWatchdog. It pushes
// each decoded frame into the drop-oldest ring and records the time of
// the last successful decode for freeze detection.
func (c *BufferedCapture) readLoop() {
	defer close(c.readerDone)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		mat, ok := c.nativeReadWithWatchdog()
		if !ok {
			continue
		}
		if mat.Empty() {
			mat.Close()
			continue
		}

		c.gotFrame.Store(true)
		c.lastNewFrame.Store(time.Now())

		frame := Frame{Mat: mat, CapturedAt: time.Now()}
		c.mu.Lock()
		if c.lastGood != nil {
			c.lastGood.Mat.Close()
		}
		clone := mat.Clone()
		c.lastGood = &Frame{Mat: clone, CapturedAt: frame.CapturedAt}
		c.mu.Unlock()

		select {
		case c.frames <- frame:
		default:
			// Ring is full: drop the oldest queued frame, then push.
			select {
			case old := <-c.frames:
				old.Mat.Close()
			default:
			}
			select {
			case c.frames <- frame:
			default:
				frame.Mat.Close()
			}
		}
	}
}

// nativeReadWithWatchdog performs a single blocking native_read() under a
// read-watchdog: if the read does not return within readWatchdogTimeout,
// the reader abandons waiting on this attempt and loops — the underlying
// call is never forcibly terminated, only no longer waited on (spec.md
// §4.1/§5). Every native_read() goroutine, whether or not this call waits
// for it, is registered on c.inflight so Close can wait for all of them
// before the native handle is released.
func (c *BufferedCapture) nativeReadWithWatchdog() (gocv.Mat, bool) {
	type result struct {
		mat gocv.Mat
		ok  bool
	}
	done := make(chan result, 1)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		mat := gocv.NewMat()
		ok := c.video.Read(&mat)
		done <- result{mat: mat, ok: ok}
	}()

	select {
	case r := <-done:
		if !r.ok {
			r.mat.Close()
			return gocv.Mat{}, false
		}
		return r.mat, true
	case <-time.After(readWatchdogTimeout):
		// Attempt timed out; the goroutine above is left running, and its
		// Mat is closed here once (or if) the native call ever returns.
		go func() {
			r := <-done
			r.mat.Close()
		}()
		return gocv.Mat{}, false
	}
}

// Read returns the most recent decoded frame with bounded age. It waits
// up to readWaitTimeout on the frame queue; if the queue is empty it
// falls back to the last good frame, or reports Frozen/NoData per
// spec.md §4.1.
func (c *BufferedCapture) Read() (Frame, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-time.After(readWaitTimeout):
	}

	if c.gotFrame.Load() {
		last, _ := c.lastNewFrame.Load().(time.Time)
		if time.Since(last) > freezeTimeout {
			return Frame{}, ErrFrozen
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood != nil {
		return Frame{Mat: c.lastGood.Mat.Clone(), CapturedAt: c.lastGood.CapturedAt}, nil
	}
	return Frame{}, ErrNoData
}

// Close signals the reader to stop, waits for it (and its in-flight
// watchdog) to actually return, and only then releases the native
// capture handle — releasing while a native read is in flight causes
// use-after-free in the native backend (spec.md §4.1).
func (c *BufferedCapture) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.stop)

	select {
	case <-c.readerDone:
	case <-time.After(closeDrainTimeout):
		log.Printf("sysmonit: capture %s: reader did not stop within %s, deferring release", c.url, closeDrainTimeout)
		<-c.readerDone
	}

	inflightDone := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(inflightDone)
	}()
	select {
	case <-inflightDone:
	case <-time.After(closeDrainTimeout):
		log.Printf("sysmonit: capture %s: native read still in flight after %s, waiting for it to return", c.url, closeDrainTimeout)
		<-inflightDone
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	drained := true
	for drained {
		select {
		case f := <-c.frames:
			f.Mat.Close()
		default:
			drained = false
		}
	}
	if c.lastGood != nil {
		c.lastGood.Mat.Close()
		c.lastGood = nil
	}

	return c.video.Close()
}
