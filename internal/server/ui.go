package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleUI(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, uiHTML)
}

const uiHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>gohud</title>
  <style>
    body { margin:0; background:#05070d; color:#e8eefc; font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Arial; }
    .hud { display:flex; flex-direction:column; align-items:center; justify-content:center; height:100vh; gap:12px; }
    .speed { font-size: 26vmin; font-weight: 700; line-height: 1; cursor: pointer; user-select: none; }
    .speed.over { color: #ff5d5d; }
    .unit { font-size: 4vmin; color: #8fa3c8; letter-spacing: .2em; text-transform: uppercase; }
    .limit { border: 0.9vmin solid #d33; border-radius: 50%; width: 11vmin; height: 11vmin;
             display:flex; align-items:center; justify-content:center; font-size: 4.5vmin;
             font-weight:700; background:#fff; color:#111; visibility:hidden; }
    .limit.on { visibility: visible; }
    .road { font-size: 4vmin; color:#b9c8e6; min-height: 5vmin; }
    .meta { font-size: 3vmin; color:#68779a; display:flex; gap: 3vmin; }
    .meta .warn { color:#e0b341; }
    .offline { position:fixed; top:10px; right:14px; color:#ff5d5d; font-size:14px; display:none; }
  </style>
</head>
<body>
<div class="offline" id="offline">reconnecting…</div>
<div class="hud">
  <div class="limit" id="limit"></div>
  <div class="speed" id="speed" title="tap to switch units">0</div>
  <div class="unit" id="unit">km/h</div>
  <div class="road" id="road"></div>
  <div class="meta">
    <span id="weather"></span>
    <span id="battery"></span>
    <span id="tracking" class="warn"></span>
  </div>
</div>
<script>
let unit = "kmh";
const labels = { kmh: "km/h", mph: "mph" };

function render(st) {
  unit = st.unit;
  const speedEl = document.getElementById("speed");
  speedEl.textContent = st.speed;
  speedEl.classList.toggle("over", st.speed_limit != null && st.speed > st.speed_limit);
  document.getElementById("unit").textContent = labels[st.unit] || st.unit;

  const limitEl = document.getElementById("limit");
  limitEl.classList.toggle("on", st.speed_limit != null);
  limitEl.textContent = st.speed_limit != null ? st.speed_limit : "";

  document.getElementById("road").textContent = st.road || "";
  const deg = st.unit === "mph" ? "°F" : "°C";
  document.getElementById("weather").textContent =
    st.weather ? Math.round(st.weather.temperature) + deg + " " + st.weather.label : "";
  document.getElementById("battery").textContent =
    st.power && st.power.present ? st.power.percent + "%" + (st.power.charging ? "⚡" : "") : "";
  document.getElementById("tracking").textContent = st.tracking ? "" : "paused";
}

function connect() {
  const proto = location.protocol === "https:" ? "wss" : "ws";
  const ws = new WebSocket(proto + "://" + location.host + "/api/live");
  ws.onopen = () => document.getElementById("offline").style.display = "none";
  ws.onmessage = (m) => {
    const f = JSON.parse(m.data);
    if (f.type === "display") render(f.data);
  };
  ws.onclose = () => {
    document.getElementById("offline").style.display = "block";
    setTimeout(connect, 2000);
  };
}
connect();

document.getElementById("speed").onclick = async () => {
  const next = unit === "kmh" ? "mph" : "kmh";
  await fetch("/api/units", {
    method: "PUT",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ unit: next }),
  });
};
</script>
</body>
</html>
`
