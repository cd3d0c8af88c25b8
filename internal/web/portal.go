package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/sweeney/smartmeter/internal/provision"
	"github.com/sweeney/smartmeter/internal/store"
)

// Portal serves the provisioning form while the access point is up.
// It implements provision.Portal.
type Portal struct {
	addr   string
	logger *slog.Logger

	// mu guards onSave and the state of a running serve.
	mu     sync.Mutex
	onSave func()
}

// NewPortal creates a Portal listening on addr when Run is called.
func NewPortal(addr string, logger *slog.Logger) *Portal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portal{addr: addr, logger: logger}
}

// SetSaveConfigCallback registers fn, called for each valid submission.
func (p *Portal) SetSaveConfigCallback(fn func()) {
	p.mu.Lock()
	p.onSave = fn
	p.mu.Unlock()
}

// Run serves the form until a submission joins the network or ctx ends.
func (p *Portal) Run(ctx context.Context, params *provision.Params, join provision.JoinFunc) error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("portal listen: %w", err)
	}
	return p.serve(ctx, ln, params, join)
}

type portalPage struct {
	Params  provision.Params
	SSID    string
	Error   string
	Message string
	Limits  struct{ Server, Port, MeterID int }
}

func (p *Portal) render(w http.ResponseWriter, code int, pg portalPage) {
	pg.Limits.Server = store.MaxServerLen
	pg.Limits.Port = store.MaxPortLen
	pg.Limits.MeterID = store.MaxMeterIDLen
	writePage(w, code, portalTmpl, pg)
}

// serve answers the form until a join succeeds. A join takes the access
// point down, so it starts only once the connecting page is flushed. The form
// keeps serving during a join and shows a failed one on the next page load.
func (p *Portal) serve(ctx context.Context, ln net.Listener, params *provision.Params, join provision.JoinFunc) error {
	done := make(chan struct{})
	var (
		joins sync.WaitGroup

		// Guarded by p.mu. joining stays set after a successful join.
		joining string
		lastErr string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			// Connectivity checks from phones land here.
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		p.mu.Lock()
		pg := portalPage{Params: *params, Error: lastErr}
		if joining != "" {
			pg.Message = "Connecting to " + joining + "."
		}
		p.mu.Unlock()
		p.render(w, http.StatusOK, pg)
	})
	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		if err := r.ParseForm(); err != nil {
			p.render(w, http.StatusBadRequest, portalPage{Error: err.Error()})
			return
		}

		sub := provision.Submission{
			Credentials: provision.Credentials{
				SSID:     r.PostFormValue("ssid"),
				Password: r.PostFormValue("password"),
			},
			Params: provision.Params{
				Server:  r.PostFormValue("server"),
				Port:    r.PostFormValue("port"),
				MeterID: r.PostFormValue("meter_id"),
			},
		}
		ssid := sub.Credentials.SSID
		pg := portalPage{Params: sub.Params, SSID: ssid}

		if ssid == "" {
			pg.Error = "network name is required"
			p.render(w, http.StatusBadRequest, pg)
			return
		}
		if _, err := sub.Params.DeviceConfig(); err != nil {
			pg.Error = err.Error()
			p.render(w, http.StatusBadRequest, pg)
			return
		}

		p.mu.Lock()
		if joining != "" {
			pg.Message = "Already connecting to " + joining + "."
			p.mu.Unlock()
			p.render(w, http.StatusConflict, pg)
			return
		}
		*params = sub.Params
		if p.onSave != nil {
			p.onSave()
		}
		joining = ssid
		lastErr = ""
		joins.Add(1)
		p.mu.Unlock()

		p.logger.Info("portal submission", "ssid", ssid, "server", sub.Params.Server, "meter_id", sub.Params.MeterID)
		pg.Message = "Saved. Connecting to " + ssid + "."
		p.render(w, http.StatusOK, pg)
		http.NewResponseController(w).Flush()

		go func() {
			defer joins.Done()
			err := join(ctx, sub.Credentials)

			p.mu.Lock()
			defer p.mu.Unlock()
			if err != nil {
				p.logger.Warn("join failed", "ssid", ssid, "error", err)
				joining = ""
				lastErr = fmt.Sprintf("could not join %s: %v", ssid, err)
				return
			}
			close(done)
		}()
	})

	srv := newServer("", mux)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var err error
	select {
	case <-done:
		srv.stop()
	case <-ctx.Done():
		srv.stop()
		err = ctx.Err()
	case serveErr := <-errCh:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			err = fmt.Errorf("portal serve: %w", serveErr)
		}
	}
	joins.Wait()
	return err
}

var portalTmpl = template.Must(template.New("portal").Parse(portalHTML))

const portalHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Smart Meter setup</title>
` + pageStyle + `
</head>
<body>
<h1>Smart Meter setup</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Message}}<p class="connected">{{.Message}}</p>{{else}}
<form method="post" action="/save">
<table>
<tr><th>Wi-Fi network</th><td><input name="ssid" value="{{.SSID}}" required></td></tr>
<tr><th>Wi-Fi password</th><td><input name="password" type="password"></td></tr>
<tr><th>MQTT server</th><td><input name="server" value="{{.Params.Server}}" maxlength="{{.Limits.Server}}"></td></tr>
<tr><th>MQTT port</th><td><input name="port" value="{{.Params.Port}}" maxlength="{{.Limits.Port}}"></td></tr>
<tr><th>Meter id</th><td><input name="meter_id" value="{{.Params.MeterID}}" maxlength="{{.Limits.MeterID}}"></td></tr>
</table>
<p><input type="submit" value="Save"></p>
</form>
{{end}}
</body>
</html>
`
