// Package provision brings the network up before the meter loop starts.
//
// The controller first tries the credentials the network stack already
// holds. If that fails within the connect timeout, or if the operator holds
// the button at boot, it opens an access point with a configuration portal
// where the operator enters Wi-Fi credentials and the broker settings. If the
// portal times out with nobody configuring the device, Setup returns
// ErrProvisioningTimeout and the process is expected to exit so its
// supervisor can start it again.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/smartmeter/internal/store"
)

// Default policy values.
const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultPortalTimeout  = 180 * time.Second
	DefaultAPName         = "SmartMeter AP"
)

// ErrProvisioningTimeout is terminal: nobody configured the device in time.
var ErrProvisioningTimeout = errors.New("provisioning timed out")

// State is a step of the provisioning state machine.
type State int

const (
	StateIdle State = iota
	StateAttemptingAutoConnect
	StateOpeningPortal
	StatePortalActive
	StateConnected
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                  "idle",
	StateAttemptingAutoConnect: "attempting-auto-connect",
	StateOpeningPortal:         "opening-portal",
	StatePortalActive:          "portal-active",
	StateConnected:             "connected",
	StateFailed:                "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Credentials identify the network to join.
type Credentials struct {
	SSID     string
	Password string
}

// Params are the application fields edited in the portal.
type Params struct {
	Server  string
	Port    string
	MeterID string
}

// ParamsFrom copies a stored configuration into editable fields.
func ParamsFrom(cfg store.DeviceConfig) Params {
	return Params{Server: cfg.Server(), Port: cfg.Port(), MeterID: cfg.MeterID()}
}

// DeviceConfig validates the fields.
func (p Params) DeviceConfig() (store.DeviceConfig, error) {
	return store.NewDeviceConfig(p.Server, p.Port, p.MeterID)
}

// Submission is one operator form post.
type Submission struct {
	Credentials Credentials
	Params      Params
}

// Station is the network stack.
type Station interface {
	// AutoConnect joins using credentials already stored by the stack.
	AutoConnect(ctx context.Context) error

	// Join connects to the given network and stores its credentials.
	Join(ctx context.Context, creds Credentials) error

	// StartAccessPoint opens an access point with the given name.
	StartAccessPoint(name string) error

	// StopAccessPoint closes the access point.
	StopAccessPoint() error

	// Address returns the local address once connected, for logging.
	Address() string
}

// JoinFunc is called by a Portal for each submitted set of credentials.
type JoinFunc func(ctx context.Context, creds Credentials) error

// Portal serves the configuration form while the access point is up.
type Portal interface {
	// SetSaveConfigCallback registers fn, called whenever the operator
	// submits valid parameters, before joining is attempted.
	SetSaveConfigCallback(fn func())

	// Run serves the form until join succeeds (nil) or ctx ends (error).
	// Accepted submissions are written to params.
	Run(ctx context.Context, params *Params, join JoinFunc) error
}

// Indicator shows provisioning progress.
type Indicator interface {
	Dim()
	Off()
}

// Saver persists the configuration.
type Saver interface {
	Save(cfg store.DeviceConfig) error
}

// Config configures a Controller.
type Config struct {
	Station        Station
	Portal         Portal
	Store          Saver
	Indicator      Indicator
	APName         string
	ConnectTimeout time.Duration
	// PortalTimeout bounds the portal; zero waits forever.
	PortalTimeout time.Duration
	Logger        *slog.Logger
}

// Controller runs the provisioning state machine once per boot.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	state            State
	shouldSaveConfig bool
}

// NewController creates a Controller. Zero values take the defaults.
func NewController(cfg Config) *Controller {
	if cfg.APName == "" {
		cfg.APName = DefaultAPName
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PortalTimeout < 0 {
		cfg.PortalTimeout = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// SaveRequested reports whether the operator submitted new parameters.
func (c *Controller) SaveRequested() bool {
	return c.shouldSaveConfig
}

func (c *Controller) enter(s State) {
	c.logger.Debug("provisioning state", "from", c.state, "to", s)
	c.state = s
}

// Setup connects the network, opening the portal if needed, and returns the
// configuration to run with. force skips the auto-connect attempt.
func (c *Controller) Setup(ctx context.Context, current store.DeviceConfig, force bool) (store.DeviceConfig, error) {
	if current.IsZero() {
		current = store.Default()
	}
	params := ParamsFrom(current)

	c.cfg.Portal.SetSaveConfigCallback(func() {
		c.logger.Info("flagging config for save")
		c.shouldSaveConfig = true
	})

	c.indicate(true)
	defer c.indicate(false)

	if force {
		c.logger.Info("entering configuration mode by force")
		c.enter(StateOpeningPortal)
	} else {
		c.enter(StateAttemptingAutoConnect)
		if err := c.autoConnect(ctx); err != nil {
			c.logger.Warn("auto-connect failed, opening portal", "error", err)
			c.enter(StateOpeningPortal)
		}
	}

	if c.state == StateOpeningPortal {
		if err := c.runPortal(ctx, &params); err != nil {
			c.enter(StateFailed)
			return current, err
		}
	}

	c.enter(StateConnected)
	c.logger.Info("network connected", "address", c.cfg.Station.Address())

	cfg, err := params.DeviceConfig()
	if err != nil {
		// The portal validates fields, so this only happens with a broken Portal.
		c.logger.Warn("portal returned invalid parameters, keeping previous config", "error", err)
		cfg = current
	}

	if c.shouldSaveConfig {
		c.logger.Info("saving config")
		if err := c.cfg.Store.Save(cfg); err != nil {
			c.logger.Error("save config failed", "error", err)
		}
	}
	return cfg, nil
}

func (c *Controller) autoConnect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	return c.cfg.Station.AutoConnect(cctx)
}

func (c *Controller) runPortal(ctx context.Context, params *Params) error {
	if err := c.cfg.Station.StartAccessPoint(c.cfg.APName); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}
	defer func() {
		if err := c.cfg.Station.StopAccessPoint(); err != nil {
			c.logger.Warn("stop access point failed", "error", err)
		}
	}()

	c.enter(StatePortalActive)
	c.logger.Info("configuration portal open", "ap", c.cfg.APName, "timeout", c.cfg.PortalTimeout)

	pctx := ctx
	if c.cfg.PortalTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.cfg.PortalTimeout)
		defer cancel()
	}

	if err := c.cfg.Portal.Run(pctx, params, c.cfg.Station.Join); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrProvisioningTimeout, err)
	}
	return nil
}

func (c *Controller) indicate(on bool) {
	if c.cfg.Indicator == nil {
		return
	}
	if on {
		c.cfg.Indicator.Dim()
	} else {
		c.cfg.Indicator.Off()
	}
}
