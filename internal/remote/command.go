// Package remote carries control commands from outside the frame loop and
// publishes the lobby status over MQTT.
package remote

import (
	"sync"
	"time"

	"github.com/guidoenr/fantasia/internal/analyzer"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/params"
)

// CommandKind selects what a Command does.
type CommandKind int

const (
	CmdForce CommandKind = iota
	CmdClear
	CmdVolume
	CmdEffects
	CmdMessage
)

func (k CommandKind) String() string {
	switch k {
	case CmdForce:
		return "force"
	case CmdClear:
		return "clear"
	case CmdVolume:
		return "volume"
	case CmdEffects:
		return "effects"
	case CmdMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Command is a request handed to the frame loop. Reply, when set, receives
// the outcome once the loop has applied it.
type Command struct {
	Kind      CommandKind
	ID        string
	Duration  time.Duration
	Volume    float64
	Enabled   bool
	Intensity float64
	Text      string
	Reply     chan error
}

// Status is the lobby state published to remote observers.
type Status struct {
	Theme    string              `json:"theme"`
	Name     string              `json:"name"`
	Reason   string              `json:"reason"`
	Title    string              `json:"title,omitempty"`
	Volume   float64             `json:"volume"`
	FPS      float64             `json:"fps"`
	Playing  bool                `json:"playing"`
	Silent   bool                `json:"silent"`
	Bands    analyzer.BandEnergy `json:"bands"`
	Effects  params.Effects      `json:"effects"`
	Video    string              `json:"video"`
	Shed     int                 `json:"shed"`
	Override *override.Flag      `json:"override,omitempty"`
	Message  string              `json:"message,omitempty"`
	Updated  time.Time           `json:"updated"`
}

// Board holds the latest status. The frame loop writes it and the MQTT and
// web publishers read it.
type Board struct {
	mu     sync.RWMutex
	status Status
}

// Set replaces the published status.
func (b *Board) Set(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Get returns a copy of the latest status.
func (b *Board) Get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}
