package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/speedhud/gohud/internal/domain"
)

const reconnectDelay = 2 * time.Second

var (
	speedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	speedOverStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("1"))

	unitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	limitStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("1")).
			Padding(0, 1)

	roadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("110"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 4)
)

// frame mirrors the push messages on /api/live.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type displayMsg struct{ state domain.DisplayState }
type eventMsg struct{ line string }
type connectedMsg struct{ conn *gorillaWS.Conn }
type disconnectedMsg struct{ err error }
type unitSetMsg struct{ err error }

type model struct {
	addr string
	conn *gorillaWS.Conn

	state     domain.DisplayState
	haveState bool
	connected bool
	lastErr   error
	lastEvent string
	width     int
	height    int
}

func connect(addr string) tea.Cmd {
	return func() tea.Msg {
		u := url.URL{Scheme: "ws", Host: addr, Path: "/api/live"}
		conn, _, err := gorillaWS.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func reconnectLater(addr string) tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return connect(addr)()
	})
}

// readFrame blocks on the websocket and turns the next frame into a message.
func readFrame(conn *gorillaWS.Conn) tea.Cmd {
	return func() tea.Msg {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return disconnectedMsg{err: err}
			}

			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}

			switch f.Type {
			case "display":
				var st domain.DisplayState
				if err := json.Unmarshal(f.Data, &st); err != nil {
					continue
				}
				return displayMsg{state: st}
			case "trip_started":
				return eventMsg{line: "trip started"}
			case "trip_ended":
				return eventMsg{line: "trip ended"}
			case "power":
				return eventMsg{line: "power changed"}
			default:
				// lookup chatter is not worth a status line
				continue
			}
		}
	}
}

// toggleUnit flips kmh<->mph over the REST API; the new display state
// arrives on the live feed like any other update.
func toggleUnit(addr string, current domain.Unit) tea.Cmd {
	return func() tea.Msg {
		next := domain.UnitMph
		if current == domain.UnitMph {
			next = domain.UnitKmh
		}
		body, _ := json.Marshal(map[string]string{"unit": string(next)})
		req, err := http.NewRequest(http.MethodPut,
			fmt.Sprintf("http://%s/api/units", addr), bytes.NewReader(body))
		if err != nil {
			return unitSetMsg{err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return unitSetMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return unitSetMsg{err: fmt.Errorf("units: http %d", resp.StatusCode)}
		}
		return unitSetMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return connect(m.addr)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		case "u":
			if m.connected && m.haveState {
				return m, toggleUnit(m.addr, m.state.Unit)
			}
		}
		return m, nil

	case connectedMsg:
		m.conn = msg.conn
		m.connected = true
		m.lastErr = nil
		return m, readFrame(m.conn)

	case disconnectedMsg:
		m.connected = false
		m.conn = nil
		m.lastErr = msg.err
		return m, reconnectLater(m.addr)

	case displayMsg:
		m.state = msg.state
		m.haveState = true
		return m, readFrame(m.conn)

	case eventMsg:
		m.lastEvent = msg.line
		return m, readFrame(m.conn)

	case unitSetMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	if !m.connected {
		b.WriteString(errStyle.Render("connecting to " + m.addr + " ..."))
		if m.lastErr != nil {
			b.WriteString("\n" + dimStyle.Render(m.lastErr.Error()))
		}
		return frameStyle.Render(b.String())
	}
	if !m.haveState {
		return frameStyle.Render(dimStyle.Render("waiting for first fix ..."))
	}

	st := m.state

	speed := fmt.Sprintf("%d", st.Speed)
	if st.OverLimit() {
		b.WriteString(speedOverStyle.Render(bigDigits(speed)))
	} else {
		b.WriteString(speedStyle.Render(bigDigits(speed)))
	}
	b.WriteString("\n" + unitStyle.Render(st.Unit.SpeedLabel()) + "\n\n")

	if st.SpeedLimit != nil {
		b.WriteString(limitStyle.Render(fmt.Sprintf("%d", *st.SpeedLimit)) + "\n")
	} else {
		b.WriteString(dimStyle.Render("limit —") + "\n")
	}

	if st.Road != nil {
		b.WriteString(roadStyle.Render(*st.Road) + "\n")
	} else {
		b.WriteString(dimStyle.Render("road —") + "\n")
	}

	if w := st.Weather; w != nil {
		b.WriteString(fmt.Sprintf("%s  %.0f%s (%.0f/%.0f)\n",
			w.Label, w.Temperature, st.Unit.TempLabel(), w.High, w.Low))
	}

	status := []string{}
	if !st.Tracking {
		status = append(status, errStyle.Render("PAUSED"))
	}
	if st.Power.Present {
		charge := "on battery"
		if st.Power.Charging {
			charge = "charging"
		}
		status = append(status, fmt.Sprintf("%s %d%%", charge, st.Power.Percent))
	}
	if !st.FixTime.IsZero() {
		status = append(status, fmt.Sprintf("fix %s ago", time.Since(st.FixTime).Round(time.Second)))
	}
	if m.lastEvent != "" {
		status = append(status, m.lastEvent)
	}
	b.WriteString("\n" + dimStyle.Render(strings.Join(status, "  ·  ")))
	b.WriteString("\n\n" + dimStyle.Render("u: toggle units   q: quit"))

	out := frameStyle.Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, out)
	}
	return out
}

// bigDigits renders a number in a 3-row block font so the speed reads from
// across the car.
func bigDigits(s string) string {
	rows := [3]string{}
	for _, r := range s {
		glyph, ok := digitFont[r]
		if !ok {
			glyph = digitFont['?']
		}
		for i := 0; i < 3; i++ {
			rows[i] += glyph[i] + " "
		}
	}
	return strings.Join(rows[:], "\n")
}

var digitFont = map[rune][3]string{
	'0': {"█▀█", "█ █", "▀▀▀"},
	'1': {" █ ", " █ ", " ▀ "},
	'2': {"▀▀█", "█▀▀", "▀▀▀"},
	'3': {"▀▀█", " ▀█", "▀▀▀"},
	'4': {"█ █", "▀▀█", "  ▀"},
	'5': {"█▀▀", "▀▀█", "▀▀▀"},
	'6': {"█▀▀", "█▀█", "▀▀▀"},
	'7': {"▀▀█", "  █", "  ▀"},
	'8': {"█▀█", "█▀█", "▀▀▀"},
	'9': {"█▀█", "▀▀█", "▀▀▀"},
	'?': {"▀▀█", " ▀ ", " ▀ "},
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8722", "hud daemon address")
	flag.Parse()

	p := tea.NewProgram(model{addr: *addr}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}
