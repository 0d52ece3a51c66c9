package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fleet lists the game servers this process manages.
type Fleet struct {
	Servers []ServerDefinition `yaml:"servers"`
}

// ServerDefinition describes one OpenRCT2 server instance.
// An empty Dir marks the server as unmanaged: it can be queried and
// controlled but never saved into the archive.
type ServerDefinition struct {
	Name     string  `yaml:"name"`
	Group    string  `yaml:"group"`
	GameMode string  `yaml:"gamemode"`
	MOTD     *string `yaml:"motd"`
	Hostname string  `yaml:"hostname"`
	Port     int     `yaml:"port"`
	Dir      string  `yaml:"dir"`
}

// LoadFleet reads the fleet definition from a YAML file. defaultMOTD is used
// for servers that do not set motd; an explicit empty motd disables it.
func LoadFleet(path, defaultMOTD string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fleet file: %w", err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("parsing fleet file: %w", err)
	}

	for i := range fleet.Servers {
		srv := &fleet.Servers[i]
		if srv.Name == "" {
			srv.Name = "server"
		}
		if srv.Group == "" {
			srv.Group = "default"
		}
		if srv.GameMode == "" {
			srv.GameMode = "multiplayer"
		}
		if srv.Hostname == "" {
			srv.Hostname = "127.0.0.1"
		}
		if srv.Port == 0 {
			srv.Port = DefaultRemotePort
		}
		if srv.MOTD == nil {
			motd := defaultMOTD
			srv.MOTD = &motd
		}
	}

	return &fleet, nil
}
