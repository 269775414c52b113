package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// cloudConfig is the per-robot connection material returned by the
// cloud configuration service.
type cloudConfig struct {
	Hostname          string `json:"hostname"`
	Port              int    `json:"port"`
	Protocol          string `json:"protocol"`
	WebsocketPort     int    `json:"websocket_port"`
	WebsocketProtocol string `json:"websocket_protocol"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	RobotAPIKey       string `json:"robotApiKey"`
}

// fetchRobotConfig retrieves connection credentials for this robot.
// Any transport failure or non-2xx response aborts the connect.
func (s *RobotSession) fetchRobotConfig() (*cloudConfig, error) {
	body, err := json.Marshal(map[string]string{
		"appKey":  s.APIKey,
		"robotId": s.RobotID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode robot config request: %w", err)
	}

	resp, err := s.httpClient.Post(s.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request robot config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("robot config request failed with status %s", resp.Status)
	}

	var cfg cloudConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode robot config response: %w", err)
	}
	if cfg.Hostname == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("robot config response is missing hostname or port")
	}
	return &cfg, nil
}
