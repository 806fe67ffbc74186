package mqttfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/domain"
	"github.com/speedhud/gohud/internal/sources"
	"github.com/speedhud/gohud/internal/stream"
	"github.com/speedhud/gohud/pkg/config"
)

var log = logrus.WithField("component", "mqttfeed")

func init() {
	sources.Register("mqttfeed", func(cfg *config.Config) (stream.FixStream, error) {
		if cfg.Source.MQTT.Broker == "" {
			return nil, fmt.Errorf("mqttfeed: broker is required")
		}
		return New(cfg.Source.MQTT), nil
	})
}

// telemetry is the companion payload a phone publishes next to its fixes.
type telemetry struct {
	BatteryPercent int  `json:"battery_percent"`
	Charging       bool `json:"charging"`
	Present        bool `json:"present"`
}

// Stream subscribes to a broker where a phone app publishes its GPS fixes,
// and optionally its battery telemetry on a second topic.
type Stream struct {
	handlers *stream.HandlerList
	cfg      config.MQTTConfig

	mu      sync.Mutex
	onPower func(status domain.PowerStatus)

	client    mqtt.Client
	runCtx    context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc
}

func New(cfg config.MQTTConfig) *Stream {
	if cfg.ClientID == "" {
		cfg.ClientID = "gohud"
	}
	if cfg.FixTopic == "" {
		cfg.FixTopic = "gohud/fix"
	}
	return &Stream{
		handlers: stream.NewHandlerList(),
		cfg:      cfg,
	}
}

func (s *Stream) OnFix(handler stream.FixHandler) {
	s.handlers.Add(handler)
}

// OnPower registers a battery telemetry callback. Implements
// sources.PowerReporter.
func (s *Stream) OnPower(handler func(status domain.PowerStatus)) {
	s.mu.Lock()
	s.onPower = handler
	s.mu.Unlock()
}

func (s *Stream) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	// subscriptions live in OnConnect so they survive reconnects
	opts.OnConnect = func(c mqtt.Client) {
		log.Infof("connected to %s", s.cfg.Broker)
		if token := c.Subscribe(s.cfg.FixTopic, 1, s.handleFixMessage); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", s.cfg.FixTopic, token.Error())
		}
		if s.cfg.TelemetryTopic != "" {
			if token := c.Subscribe(s.cfg.TelemetryTopic, 1, s.handleTelemetryMessage); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", s.cfg.TelemetryTopic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warnf("connection lost: %v", err)
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		cancel()
		return token.Error()
	}

	go func() {
		<-runCtx.Done()
		s.client.Disconnect(250)
	}()
	return nil
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

func (s *Stream) handleFixMessage(_ mqtt.Client, msg mqtt.Message) {
	fix, err := parseFix(msg.Payload())
	if err != nil {
		log.Debugf("bad fix payload on %s: %v", msg.Topic(), err)
		return
	}
	s.handlers.Emit(s.runCtx, fix)
}

func (s *Stream) handleTelemetryMessage(_ mqtt.Client, msg mqtt.Message) {
	status, err := parseTelemetry(msg.Payload())
	if err != nil {
		log.Debugf("bad telemetry payload on %s: %v", msg.Topic(), err)
		return
	}
	s.mu.Lock()
	handler := s.onPower
	s.mu.Unlock()
	if handler != nil {
		handler(status)
	}
}

// parseFix decodes a published fix. A missing timestamp is stamped on
// arrival so replayed messages do not need clock agreement with the HUD.
func parseFix(payload []byte) (domain.Fix, error) {
	var fix domain.Fix
	if err := json.Unmarshal(payload, &fix); err != nil {
		return domain.Fix{}, err
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now().UTC()
	}
	if !fix.IsValid() {
		return domain.Fix{}, fmt.Errorf("coordinates out of range: lat=%v lon=%v", fix.Lat, fix.Lon)
	}
	return fix, nil
}

func parseTelemetry(payload []byte) (domain.PowerStatus, error) {
	var t telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		return domain.PowerStatus{}, err
	}
	return domain.PowerStatus{
		Present:  t.Present,
		Charging: t.Charging,
		Percent:  t.BatteryPercent,
	}, nil
}
