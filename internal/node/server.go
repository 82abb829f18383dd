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

// Package node implements the CSI Node service: idempotent NFS mount
// reconciliation on publish, bounded-retry unmount on unpublish, and
// inline ephemeral-volume provisioning that calls straight into the
// Controller service's Go methods instead of dialing the gRPC endpoint.
package node

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/controller"
	csimount "github.com/montaguethomas/vast-csi/internal/mount"
)

// Server implements csi.NodeServer. It always holds an inline Controller
// instance so ephemeral-volume publish can invoke CreateVolume and
// ControllerPublishVolume locally, even on a node-only process that
// never registers the gRPC Controller service.
type Server struct {
	csi.UnimplementedNodeServer

	Config     *config.Config
	Mount      *csimount.Shim
	controller *controller.Server
}

// New builds a Node server. inlineController backs ephemeral-volume
// provisioning and is constructed by the driver wiring regardless of
// whether the Controller service is also registered on this process.
func New(cfg *config.Config, inlineController *controller.Server) *Server {
	return &Server{
		Config:     cfg,
		Mount:      csimount.New(),
		controller: inlineController,
	}
}

// NodeGetInfo returns the configured node id and an empty topology
// (the driver does not model accessibility constraints).
func (s *Server) NodeGetInfo(ctx context.Context, req *csi.NodeGetInfoRequest) (*csi.NodeGetInfoResponse, error) {
	return &csi.NodeGetInfoResponse{NodeId: s.Config.NodeID}, nil
}

// NodeGetCapabilities returns no capabilities: no stage/unstage, no
// per-node volume stats, no node-side expansion.
func (s *Server) NodeGetCapabilities(
	ctx context.Context,
	req *csi.NodeGetCapabilitiesRequest,
) (*csi.NodeGetCapabilitiesResponse, error) {
	return &csi.NodeGetCapabilitiesResponse{}, nil
}
