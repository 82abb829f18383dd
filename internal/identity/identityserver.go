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

// Package identity implements the CSI Identity service: plugin info,
// capabilities, and the readiness Probe that controller-only deployments
// use to confirm the VMS is actually reachable.
package identity

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// Server implements csi.IdentityServer.
type Server struct {
	csi.UnimplementedIdentityServer

	Config  *config.Config
	Session vms.Session
}

// New builds an Identity server reporting cfg's plugin identity and
// probing session for readiness.
func New(cfg *config.Config, session vms.Session) *Server {
	return &Server{Config: cfg, Session: session}
}

// GetPluginInfo reports the driver's name and version.
func (s *Server) GetPluginInfo(ctx context.Context, req *csi.GetPluginInfoRequest) (*csi.GetPluginInfoResponse, error) {
	if s.Config.PluginName == "" {
		return nil, csierr.Unknown("driver name not configured")
	}

	return &csi.GetPluginInfoResponse{
		Name:          s.Config.PluginName,
		VendorVersion: s.Config.PluginVersion,
	}, nil
}

// GetPluginCapabilities advertises online volume expansion always, and
// ControllerService iff this process has a Controller configured.
func (s *Server) GetPluginCapabilities(
	ctx context.Context,
	req *csi.GetPluginCapabilitiesRequest,
) (*csi.GetPluginCapabilitiesResponse, error) {
	caps := []*csi.PluginCapability{
		{
			Type: &csi.PluginCapability_VolumeExpansion_{
				VolumeExpansion: &csi.PluginCapability_VolumeExpansion{
					Type: csi.PluginCapability_VolumeExpansion_ONLINE,
				},
			},
		},
	}

	if s.Config.IsControllerServer() {
		caps = append(caps, &csi.PluginCapability{
			Type: &csi.PluginCapability_Service_{
				Service: &csi.PluginCapability_Service{
					Type: csi.PluginCapability_Service_CONTROLLER_SERVICE,
				},
			},
		})
	}

	return &csi.GetPluginCapabilitiesResponse{Capabilities: caps}, nil
}

// Probe reports readiness. A node-configured process is always ready
// once started (mount is a local operation it can always attempt); a
// mocked process is always ready; a controller-only process must reach
// the VMS to obtain a VIP before it is considered ready.
func (s *Server) Probe(ctx context.Context, req *csi.ProbeRequest) (*csi.ProbeResponse, error) {
	if s.Config.IsNodeServer() || s.Config.MockVast {
		return &csi.ProbeResponse{Ready: wrapperspb.Bool(true)}, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.Config.ProbeTimeout)
	defer cancel()

	if _, err := s.Session.GetVIP(probeCtx, s.Config.DeletionVIPPool, vms.RoundRobin, 0); err != nil {
		return nil, csierr.FailedPrecondition("vms not reachable: %v", err)
	}

	return &csi.ProbeResponse{Ready: wrapperspb.Bool(true)}, nil
}
