// Package cmn holds the configuration surface shared by every fastbus
// component: ports, timeouts, and the cluster admission lists consumed by
// the socket managers' predicates (§4.4, §6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fastbus/fastbus/cmn/cos"
)

var jsonC = jsoniter.ConfigCompatibleWithStandardLibrary

// Duration unmarshals both `"1s"`-style strings and plain nanosecond
// integers, the way aistore's own config parser does, so existing
// deployment YAML/JSON keeps working unmodified.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := jsonC.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(x))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) { return jsonC.Marshal(d.D().String()) }

type (
	// ClusterConfig configures the admission predicate for the Cluster scope
	// (§4.4): a peer is admitted if it is self, shares cluster_name, or its
	// application/address is on one of the whitelists.
	ClusterConfig struct {
		ClusterName  string   `json:"cluster_name"`
		Applications []string `json:"applications"`
		Nodes        []string `json:"nodes"`
	}

	// Config is the full set of recognized options (§6).
	Config struct {
		ApplicationName    string        `json:"application_name"`
		RPCPortBase        uint16        `json:"rpc_port_base"`
		PubPortBase        uint16        `json:"pub_port_base"`
		Cluster            ClusterConfig `json:"cluster"`
		MessageTimeout     Duration      `json:"message_timeout"`
		CleanupInterval    Duration      `json:"cleanup_interval"`
		BeaconInterval     Duration      `json:"beacon_interval"`
		InactiveThreshold  Duration      `json:"inactive_threshold"`
		ServerInstances    int           `json:"server_instances"`
		AutoScan           bool          `json:"auto_scan"`
	}
)

const (
	dfltRPCPortBase = 20000
	dfltPubPortBase = 10000
	dfltPortScan    = 200
)

// RPCPortScanEnd is the exclusive upper bound of the TCP port probe range
// the command server (C9) walks looking for a free listener.
func (c *Config) RPCPortScanEnd() uint16 { return c.RPCPortBase + dfltPortScan }

// Default returns a Config with every default from §6 applied; the caller
// may override fields before using it.
func Default() *Config {
	return &Config{
		ApplicationName:   cos.FormatMeshID(cos.CryptoRandU64()),
		RPCPortBase:       dfltRPCPortBase,
		PubPortBase:       dfltPubPortBase,
		MessageTimeout:    Duration(time.Second),
		CleanupInterval:   Duration(10 * time.Second),
		BeaconInterval:    Duration(2 * time.Second),
		InactiveThreshold: Duration(30 * time.Second),
		ServerInstances:   1,
	}
}

// Load reads JSON configuration from r, applying it on top of Default().
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := jsonC.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is a convenience wrapper around Load for the common case.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
