package web

import (
	"fmt"
	"html/template"
	"time"

	"github.com/sweeney/smartmeter/internal/status"
)

var funcs = template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}

var indexTmpl = template.Must(template.New("index").Funcs(funcs).Parse(indexHTML))

const pageStyle = `<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.inactive { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
input { font-family: monospace; width: 100%; box-sizing: border-box; }
</style>`

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Smart Meter {{.Config.MeterID}}</title>
` + pageStyle + `
</head>
<body>
<h1>Smart Meter {{.Config.MeterID}}</h1>

<h2>Meter</h2>
<table>
<tr><th>Pulses</th><td>{{.Count}}</td></tr>
<tr><th>Sensor</th><td class="{{if eq (printf "%s" .Sensor) "ACTIVE"}}active{{else}}inactive{{end}}">{{printf "%s" .Sensor}}</td></tr>
<tr><th>Last pulse</th><td>{{stamp .LastPulse}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
<tr><th>Last publish</th><td>{{stamp .LastPublish}} ({{.LastPublishedCount}})</td></tr>
{{if .Address}}<tr><th>IP</th><td>{{.Address}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Session</th><td>{{.Session}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Publish interval</th><td>{{.Config.PublishIntervalMs}}ms</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

// indexData adds the uptime, which Snapshot only exposes as a method.
func indexData(snap status.Snapshot) any {
	return struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
}
