package serialgps

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/sources"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/config"
	"github.com/speedhud/gohud/pkg/geomath"
	"github.com/speedhud/gohud/pkg/syncgroup"
)

var log = logrus.WithField("component", "serialgps")

func init() {
	sources.Register("serialgps", func(cfg *config.Config) (stream.FixStream, error) {
		return New(cfg.Source.Serial.Port, cfg.Source.Serial.Baud), nil
	})
}

const (
	reconnectDelay = 5 * time.Second

	// rough horizontal error per HDOP unit for consumer receivers
	uereMeters = 5.0
)

// Stream reads NMEA 0183 from a serial GPS receiver. RMC sentences become
// fixes; GGA sentences only contribute the HDOP used for accuracy.
type Stream struct {
	handlers *stream.HandlerList
	port     string
	baud     uint

	cancel    context.CancelFunc
	closeOnce sync.Once
	sg        *syncgroup.SyncGroup

	mu   sync.Mutex
	conn io.ReadWriteCloser
	hdop float64
}

func New(port string, baud int) *Stream {
	if baud <= 0 {
		baud = 9600
	}
	return &Stream{
		handlers: stream.NewHandlerList(),
		port:     port,
		baud:     uint(baud),
		sg:       syncgroup.NewSyncGroup(),
	}
}

func (s *Stream) OnFix(handler stream.FixHandler) {
	s.handlers.Add(handler)
}

func (s *Stream) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.sg.Add(func() { s.loop(runCtx) })
	s.sg.Run()
	return nil
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
		s.sg.Wait()
	})
	return nil
}

func (s *Stream) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := serial.Open(serial.OpenOptions{
			PortName:        s.port,
			BaudRate:        s.baud,
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
		})
		if err != nil {
			log.Warnf("open %s: %v, retrying in %s", s.port, err, reconnectDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		log.Infof("reading NMEA from %s at %d baud", s.port, s.baud)

		s.read(ctx, conn)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) read(ctx context.Context, conn io.Reader) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		s.handleLine(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warnf("serial read: %v", err)
	}
}

// handleLine parses one NMEA sentence. Garbled lines are normal right after
// opening the port and are dropped silently.
func (s *Stream) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		s.mu.Lock()
		s.hdop = gga.HDOP
		s.mu.Unlock()
	case nmea.TypeRMC:
		rmc := sentence.(nmea.RMC)
		s.mu.Lock()
		hdop := s.hdop
		s.mu.Unlock()
		if fix, ok := fixFromRMC(rmc, hdop); ok {
			s.handlers.Emit(ctx, fix)
		}
	}
}

// fixFromRMC converts an RMC sentence into a fix. Sentences without a valid
// position solution are dropped.
func fixFromRMC(m nmea.RMC, hdop float64) (domain.Fix, bool) {
	if m.Validity != "A" {
		return domain.Fix{}, false
	}

	ts := time.Now().UTC()
	if m.Date.Valid && m.Time.Valid {
		ts = time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
			m.Time.Hour, m.Time.Minute, m.Time.Second,
			m.Time.Millisecond*int(time.Millisecond), time.UTC)
	}

	accuracy := 0.0
	if hdop > 0 {
		accuracy = hdop * uereMeters
	}

	return domain.Fix{
		Lat:      m.Latitude,
		Lon:      m.Longitude,
		Speed:    m.Speed * geomath.KnotsToMetersPerSecond,
		Accuracy: accuracy,
		Time:     ts,
	}, true
}
