/*
Copyright 2022 The Ceph-CSI Authors.

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

// Package driver wires the VMS session and the Identity/Controller/Node
// services together into a running gRPC server.
package driver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/controller"
	csicommon "github.com/montaguethomas/vast-csi/internal/csicommon"
	"github.com/montaguethomas/vast-csi/internal/identity"
	"github.com/montaguethomas/vast-csi/internal/log"
	"github.com/montaguethomas/vast-csi/internal/node"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// Driver holds nothing itself; Run builds every service fresh from cfg
// so tests can construct and tear down a Driver repeatedly.
type Driver struct{}

// NewDriver returns a Driver ready to Run.
func NewDriver() *Driver {
	return &Driver{}
}

// newSession builds the VMS session this process will share across its
// Identity/Controller/Node services: a real HTTPSession against
// cfg.VMSEndpoint, or a MockSession backed by local JSON files when
// cfg.MockVast is set (wired up by the sanity test suite).
func newSession(cfg *config.Config) (vms.Session, error) {
	if cfg.MockVast {
		return vms.NewMockSession(cfg.FakeQuotaStore, cfg.FakeSnapshotStore, cfg.SanityTestNFSExport, "127.0.0.1"), nil
	}

	session := vms.NewHTTPSession(
		cfg.VMSEndpoint,
		cfg.VMSCredentials.Username,
		cfg.VMSCredentials.Password,
		cfg.SSLVerify,
		cfg.VMSCACert,
	)

	if err := session.RefreshAuthToken(context.Background()); err != nil {
		return nil, err
	}

	return session, nil
}

// Run starts a non-blocking gRPC server exposing whichever of
// Identity/Controller/Node services cfg.Mode calls for, serving
// parallel requests until the process exits.
func (d *Driver) Run(cfg *config.Config) {
	session, err := newSession(cfg)
	if err != nil {
		log.FatalLogMsg("failed to initialize VMS session: %v", err)
	}

	srv := csicommon.Servers{
		IS: identity.New(cfg, session),
	}

	var controllerServer *controller.Server
	if cfg.IsControllerServer() {
		controllerServer = controller.New(cfg, session)
		srv.CS = controllerServer
	}

	if cfg.IsNodeServer() {
		// The inline controller always exists on a node-serving process:
		// ephemeral volume provisioning invokes it directly, bypassing
		// gRPC, whether or not this process also registers a standalone
		// Controller service.
		if controllerServer == nil {
			controllerServer = controller.New(cfg, session)
		}
		srv.NS = node.New(cfg, controllerServer)
	}

	if cfg.MetricsPort != 0 {
		go startMetricsServer(cfg)
	}

	server := csicommon.NewNonBlockingGRPCServer()
	server.Start(cfg.Endpoint, cfg.HistogramOption, cfg.WorkerThreads, srv, cfg.EnableGRPCMetrics)
	server.Wait()
}

// startMetricsServer exposes the grpc_prometheus handling-time histogram
// registered by the dispatcher.
func startMetricsServer(cfg *config.Config) {
	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())

	addr := ":" + strconv.Itoa(cfg.MetricsPort)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // internal metrics endpoint, no timeouts needed
		log.ErrorLogMsg("metrics server stopped: %v", err)
	}
}
