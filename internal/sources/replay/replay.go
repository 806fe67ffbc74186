package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/sources"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/config"
)

var log = logrus.WithField("component", "replay")

func init() {
	sources.Register("replay", func(cfg *config.Config) (stream.FixStream, error) {
		if cfg.Source.Replay.Path == "" {
			return nil, fmt.Errorf("replay: path is required")
		}
		return New(cfg.Source.Replay.Path, cfg.Source.Replay.Pace), nil
	})
}

// maxGap caps the pause between two fixes so a log with an overnight hole
// in it does not stall the replay for hours.
const maxGap = 5 * time.Second

// Stream replays a recorded JSONL fix log, one fix per line. Fixes keep
// their recorded timestamps so a drive reproduces exactly, pipeline and all.
type Stream struct {
	handlers *stream.HandlerList
	path     string
	pace     float64

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a replay stream. pace scales the recorded inter-fix delays:
// 1.0 replays in real time, 2.0 at double speed.
func New(path string, pace float64) *Stream {
	if pace <= 0 {
		pace = 1.0
	}
	return &Stream{
		handlers: stream.NewHandlerList(),
		path:     path,
		pace:     pace,
		done:     make(chan struct{}),
	}
}

func (s *Stream) OnFix(handler stream.FixHandler) {
	s.handlers.Add(handler)
}

// Connect opens the log and starts replaying it in the background.
func (s *Stream) Connect(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open replay log: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	log.Infof("replaying %s at %gx", s.path, s.pace)
	go s.run(runCtx, f)
	return nil
}

func (s *Stream) run(ctx context.Context, f *os.File) {
	defer close(s.done)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var prev time.Time
	lineNo, emitted := 0, 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var fix domain.Fix
		if err := json.Unmarshal(raw, &fix); err != nil {
			log.Warnf("replay line %d unparseable: %v", lineNo, err)
			continue
		}
		if !fix.IsValid() {
			log.Warnf("replay line %d dropped: invalid fix", lineNo)
			continue
		}

		if wait := s.delayBefore(prev, fix.Time); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			return
		}
		prev = fix.Time

		s.handlers.Emit(ctx, fix)
		emitted++
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("replay read failed after line %d: %v", lineNo, err)
	}
	log.Infof("replay finished: %d fixes", emitted)
}

// delayBefore computes the pause before emitting the fix stamped at. The
// recorded gap is clamped to [0, maxGap] and divided by the pace factor.
func (s *Stream) delayBefore(prev, at time.Time) time.Duration {
	if prev.IsZero() {
		return 0
	}
	gap := at.Sub(prev)
	if gap < 0 {
		gap = 0
	}
	if gap > maxGap {
		gap = maxGap
	}
	return time.Duration(float64(gap) / s.pace)
}

// Done closes when the whole log has been replayed or Close was called.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}
