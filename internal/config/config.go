/*
Copyright 2024 The Vast CSI Driver Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the driver-wide configuration: CLI flags, the VMS
// credential secret, and the small set of defaults every volume builder
// and the node service fall back to.
package config

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

const (
	// ModeController starts only the Controller (and Identity) services.
	ModeController = "controller"
	// ModeNode starts only the Node (and Identity) services.
	ModeNode = "node"
	// ModeControllerAndNode starts every service in one process.
	ModeControllerAndNode = "controller_and_node"
)

// DriverVersion is overridden at build time via -ldflags.
var DriverVersion = "dev"

// Credentials holds the VMS account used for REST calls.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Config aggregates every flag and secret the driver reads at startup.
// A single instance is constructed in cmd/vast-csi and threaded down to
// the VMS session, the builders, the controller and the node service.
type Config struct {
	// identity
	Endpoint     string
	Mode         string
	NodeID       string
	PluginName   string
	PluginVersion string
	GitCommit    string

	// server
	WorkerThreads     int
	MetricsPort       int
	MetricsPath       string
	EnableGRPCMetrics bool
	HistogramOption   string

	// VMS session
	VMSEndpoint    string
	VMSSecretFile  string
	VMSCredentials Credentials
	SSLVerify      bool
	VMSSSLCertPath string
	VMSCACert      *x509.CertPool

	// defaults applied when a StorageClass parameter is absent
	NameFmt          string
	EphVolumeNameFmt string
	LoadBalancing    string
	MountOptions     []string
	UnmountAttempts  int
	DeletionViewPolicy string
	DeletionVIPPool    string

	// mock-mode controls, used only by sanity/unit tests
	MockVast            bool
	CSISanityTest        bool
	SanityTestNFSExport  string
	FakeQuotaStore       string
	FakeSnapshotStore    string

	ProbeTimeout time.Duration
}

// RegisterFlags binds every CLI flag onto fs: unix socket endpoint by
// default, klog verbosity wired in by the caller.
func RegisterFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Endpoint, "endpoint", "unix://tmp/csi.sock", "CSI endpoint")
	fs.StringVar(&c.Mode, "mode", ModeControllerAndNode, "driver mode [controller|node|controller_and_node]")
	fs.StringVar(&c.NodeID, "node-id", "", "node id reported by NodeGetInfo")
	fs.StringVar(&c.PluginName, "drivername", "vast.csi.vastdata.com", "name of the driver")
	fs.StringVar(&c.PluginVersion, "driverversion", DriverVersion, "driver version reported by GetPluginInfo")
	fs.StringVar(&c.GitCommit, "gitcommit", "", "git commit the binary was built from")

	fs.IntVar(&c.WorkerThreads, "worker-threads", 10, "size of the gRPC handler worker pool")
	fs.IntVar(&c.MetricsPort, "metrics-port", 0, "TCP port for the gRPC metrics endpoint, 0 disables it")
	fs.StringVar(&c.MetricsPath, "metrics-path", "/metrics", "path of the prometheus metrics endpoint")
	fs.BoolVar(&c.EnableGRPCMetrics, "enable-grpc-metrics", false, "register the grpc_prometheus handling-time histogram")
	fs.StringVar(&c.HistogramOption, "histogram-option", "0.5,2,6",
		"histogram option for grpc metrics, comma separated (start,factor,count)")

	fs.StringVar(&c.VMSEndpoint, "vms-endpoint", "", "base URL of the VMS REST management API")
	fs.StringVar(&c.VMSSecretFile, "vms-secret-file", "", "path to the mounted VMS credentials secret (JSON)")
	fs.BoolVar(&c.SSLVerify, "ssl-verify", true, "verify the VMS TLS certificate")
	fs.StringVar(&c.VMSSSLCertPath, "vms-ssl-cert", "", "path to a CA bundle trusted for the VMS endpoint")

	fs.StringVar(&c.NameFmt, "name-fmt", "{namespace}-{name}-{id}", "default volume/snapshot name template")
	fs.StringVar(&c.EphVolumeNameFmt, "eph-volume-name-fmt", "ephemeral-{namespace}-{name}-{id}", "default ephemeral volume name template")
	fs.StringVar(&c.LoadBalancing, "load-balancing", "roundrobin", "default VIP selection strategy [roundrobin|random]")
	fs.IntVar(&c.UnmountAttempts, "unmount-attempts", 3, "bounded retry count for NodeUnpublishVolume")
	fs.StringVar(&c.DeletionViewPolicy, "deletion-view-policy", "", "view policy used for the client-mount deletion path")
	fs.StringVar(&c.DeletionVIPPool, "deletion-vip-pool", "", "vip pool used for the client-mount deletion path")

	fs.BoolVar(&c.MockVast, "mock-vast", false, "run entirely against a local fake VMS, used by sanity tests")
	fs.BoolVar(&c.CSISanityTest, "csi-sanity-test", false, "relax node-id checks for the csi-sanity test suite")
	fs.StringVar(&c.SanityTestNFSExport, "sanity-test-nfs-export", "/csi-volumes", "root export used by the fake NFS store")
	fs.StringVar(&c.FakeQuotaStore, "fake-quota-store", "", "directory holding one file per fake quota")
	fs.StringVar(&c.FakeSnapshotStore, "fake-snapshot-store", "", "directory holding one file per fake snapshot")

	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", 3*time.Second, "timeout for the controller-only Probe VIP check")
}

// LoadSecrets reads the VMS credentials from a mounted secret file (JSON,
// the same shape the CSI driver's k8s Secret is projected as).
func LoadSecrets(c *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec:G304, path is operator-supplied via flag
	if err != nil {
		return fmt.Errorf("reading vms credentials from %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &c.VMSCredentials); err != nil {
		return fmt.Errorf("parsing vms credentials from %s: %w", path, err)
	}

	return nil
}

// LoadCACert loads an optional CA bundle used to verify the VMS TLS
// certificate.
func LoadCACert(c *Config) error {
	if c.VMSSSLCertPath == "" {
		return nil
	}

	pem, err := os.ReadFile(c.VMSSSLCertPath) // #nosec:G304, path is operator-supplied via flag
	if err != nil {
		return fmt.Errorf("reading vms ssl cert %s: %w", c.VMSSSLCertPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates found in %s", c.VMSSSLCertPath)
	}
	c.VMSCACert = pool

	return nil
}

// Validate checks the minimum set of flags required for the configured
// mode.
func (c *Config) Validate() error {
	if c.NodeID == "" && c.Mode != ModeController && !c.CSISanityTest {
		return errors.New("node-id is required for node and controller_and_node modes")
	}
	if c.PluginName == "" {
		return errors.New("drivername must not be empty")
	}
	switch c.Mode {
	case ModeController, ModeNode, ModeControllerAndNode:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	return nil
}

// IsControllerServer reports whether this process should register the
// Controller service.
func (c *Config) IsControllerServer() bool {
	return c.Mode == ModeController || c.Mode == ModeControllerAndNode
}

// IsNodeServer reports whether this process should register the Node
// service.
func (c *Config) IsNodeServer() bool {
	return c.Mode == ModeNode || c.Mode == ModeControllerAndNode
}
