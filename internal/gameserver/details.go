package gameserver

import (
	"encoding/json"
	"time"
)

// Details is the answer to the "park" command.
type Details struct {
	Park    *ParkInfo    `json:"park,omitempty"`
	Network *NetworkInfo `json:"network,omitempty"`

	// Raw keeps the full response so the API can pass through fields
	// that are not modelled here.
	Raw json.RawMessage `json:"-"`
}

type ParkInfo struct {
	Name     string  `json:"name"`
	Guests   int     `json:"guests"`
	Rating   int     `json:"rating"`
	Value    float64 `json:"value,omitempty"`
	Cash     float64 `json:"cash,omitempty"`
	Size     int     `json:"size,omitempty"`
	Scenario string  `json:"scenario,omitempty"`
}

type NetworkInfo struct {
	Players []Player `json:"players"`
}

type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Group int    `json:"group"`
	IP    string `json:"ip,omitempty"`
	Hash  string `json:"hash,omitempty"`
	Ping  int    `json:"ping,omitempty"`
}

// ScenarioName is the name recorded in the archive for this park.
func (d *Details) ScenarioName() string {
	if d == nil || d.Park == nil {
		return ""
	}
	if d.Park.Scenario != "" {
		return d.Park.Scenario
	}
	return d.Park.Name
}

// OnlinePlayers excludes the server's own host player.
func (d *Details) OnlinePlayers() int {
	if d == nil || d.Network == nil || len(d.Network.Players) == 0 {
		return 0
	}
	return len(d.Network.Players) - 1
}

// PlayerIDs lists the ids of every connected player.
func (d *Details) PlayerIDs() []int {
	if d == nil || d.Network == nil {
		return []int{}
	}
	ids := make([]int, 0, len(d.Network.Players))
	for _, p := range d.Network.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

type cachedDetails struct {
	details   *Details
	expiresAt time.Time
}
