// Package fireprotocol models the fire control panel guarded by the access gate:
// an alarm and a sprinkler, each Ready or Running.
package fireprotocol

import (
	"sync"
	"time"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
)

// State of a fire subsystem
type State string

const (
	StateReady   State = "ready"
	StateRunning State = "running"
)

// DefaultSource names the sensor when the alert does not say
const DefaultSource = "unknown sensor"

// device is a two-state machine guarded by its own mutex
type device struct {
	mu    sync.Mutex
	name  string
	state State
}

func newDevice(name string) *device {
	return &device{name: name, state: StateReady}
}

func (d *device) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		return services.ErrConflict.WithDetail("device", d.name).WithDetail("state", string(d.state))
	}
	d.state = StateRunning
	return nil
}

func (d *device) reset() {
	d.mu.Lock()
	d.state = StateReady
	d.mu.Unlock()
}

func (d *device) current() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Alarm is the audible alarm
type Alarm struct{ *device }

// Trigger starts the alarm; fails with a conflict when it is already running
func (a Alarm) Trigger() error { return a.start() }

// Reset returns the alarm to ready
func (a Alarm) Reset() { a.reset() }

// State returns the current state
func (a Alarm) State() State { return a.current() }

// Sprinkler is the water release valve
type Sprinkler struct{ *device }

// Start opens the valve; fails with a conflict when water is already flowing
func (s Sprinkler) Start() error { return s.start() }

// Reset closes the valve and returns to ready
func (s Sprinkler) Reset() { s.reset() }

// State returns the current state
func (s Sprinkler) State() State { return s.current() }

// Outcome is the result of commanding one subsystem
type Outcome struct {
	Started bool   `json:"started"`
	State   State  `json:"state"`
	Message string `json:"message"`
}

// AlertReport describes what the panel did for an alert
type AlertReport struct {
	Source      string    `json:"source"`
	RaisedBy    string    `json:"raised_by"`
	Alarm       Outcome   `json:"alarm"`
	Sprinkler   Outcome   `json:"sprinkler"`
	PanelStatus string    `json:"panel_status"`
	At          time.Time `json:"at"`
}

// Status is the state of both subsystems
type Status struct {
	Alarm     State `json:"alarm"`
	Sprinkler State `json:"sprinkler"`
}

// Panel coordinates the alarm and sprinkler
type Panel struct {
	alarm     Alarm
	sprinkler Sprinkler
	logger    *zap.Logger
	now       func() time.Time
}

// NewPanel creates a panel with both subsystems ready
func NewPanel(logger *zap.Logger, now func() time.Time) *Panel {
	if now == nil {
		now = time.Now
	}
	return &Panel{
		alarm:     Alarm{newDevice("alarm")},
		sprinkler: Sprinkler{newDevice("sprinkler")},
		logger:    logger,
		now:       now,
	}
}

// Alarm returns the panel's alarm
func (p *Panel) Alarm() Alarm { return p.alarm }

// Sprinkler returns the panel's sprinkler
func (p *Panel) Sprinkler() Sprinkler { return p.sprinkler }

// RaiseAlert triggers the alarm and starts the sprinkler. A subsystem that
// is already running is reported, not treated as a failure of the alert.
func (p *Panel) RaiseAlert(source string, actor models.Principal) AlertReport {
	if source == "" {
		source = DefaultSource
	}

	report := AlertReport{Source: source, RaisedBy: actor.Identity, At: p.now().UTC()}

	report.Alarm = outcome(p.alarm.Trigger(), p.alarm.State(), "alarm sounding", "alarm already sounding")
	report.Sprinkler = outcome(p.sprinkler.Start(), p.sprinkler.State(), "water flow started", "sprinkler already running")

	if report.Alarm.Started || report.Sprinkler.Started {
		report.PanelStatus = "protocol complete: alarm and sprinkler engaged"
	} else {
		report.PanelStatus = "protocol already active"
	}

	p.logger.Warn("fire alert raised",
		zap.String("source", source),
		zap.String("identity", actor.Identity),
		zap.Bool("alarm_started", report.Alarm.Started),
		zap.Bool("sprinkler_started", report.Sprinkler.Started))

	return report
}

// Reset returns both subsystems to ready
func (p *Panel) Reset(actor models.Principal) Status {
	p.alarm.Reset()
	p.sprinkler.Reset()
	p.logger.Info("fire systems reset", zap.String("identity", actor.Identity))
	return p.Status()
}

// Status reports both subsystem states
func (p *Panel) Status() Status {
	return Status{Alarm: p.alarm.State(), Sprinkler: p.sprinkler.State()}
}

func outcome(err error, state State, started, already string) Outcome {
	if err != nil {
		return Outcome{Started: false, State: state, Message: already}
	}
	return Outcome{Started: true, State: state, Message: started}
}
