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

package controller

import (
	"context"
	"fmt"

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/vms"
)

var controllerCapabilities = []csi.ControllerServiceCapability_RPC_Type{
	csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
	csi.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME,
	csi.ControllerServiceCapability_RPC_LIST_VOLUMES,
	csi.ControllerServiceCapability_RPC_EXPAND_VOLUME,
	csi.ControllerServiceCapability_RPC_CREATE_DELETE_SNAPSHOT,
	csi.ControllerServiceCapability_RPC_LIST_SNAPSHOTS,
}

// ControllerGetCapabilities returns the fixed capability set advertised
// by this driver.
func (s *Server) ControllerGetCapabilities(
	ctx context.Context,
	req *csi.ControllerGetCapabilitiesRequest,
) (*csi.ControllerGetCapabilitiesResponse, error) {
	caps := make([]*csi.ControllerServiceCapability, 0, len(controllerCapabilities))
	for _, c := range controllerCapabilities {
		caps = append(caps, &csi.ControllerServiceCapability{
			Type: &csi.ControllerServiceCapability_Rpc{
				Rpc: &csi.ControllerServiceCapability_RPC{Type: c},
			},
		})
	}

	return &csi.ControllerGetCapabilitiesResponse{Capabilities: caps}, nil
}

// validateCapabilities restricts access mode to
// single-node-writer/multi-node-multi-writer, and rejects any declared
// filesystem type other than ext4.
func validateCapabilities(caps []*csi.VolumeCapability) error {
	if len(caps) == 0 {
		return fmt.Errorf("no volume capabilities provided")
	}
	for _, c := range caps {
		switch c.GetAccessMode().GetMode() {
		case csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
			csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER:
		default:
			return fmt.Errorf("unsupported access mode %s", c.GetAccessMode().GetMode())
		}
		if mnt := c.GetMount(); mnt != nil && mnt.GetFsType() != "" && mnt.GetFsType() != "ext4" {
			return fmt.Errorf("unsupported filesystem type %q", mnt.GetFsType())
		}
	}

	return nil
}

// mountOptionsFrom returns the mount flags of the first capability that
// has a mount block, unchanged; parseMountOptions does the bracket
// stripping and splitting.
func mountOptionsFrom(caps []*csi.VolumeCapability) []string {
	for _, c := range caps {
		mnt := c.GetMount()
		if mnt == nil {
			continue
		}

		return mnt.GetMountFlags()
	}

	return nil
}

// ValidateVolumeCapabilities reports whether the requested capabilities
// are supported for an existing volume. Unlike most RPCs, a capability
// mismatch is carried in the response message rather than an abort
// status, per CSI.
func (s *Server) ValidateVolumeCapabilities(
	ctx context.Context,
	req *csi.ValidateVolumeCapabilitiesRequest,
) (*csi.ValidateVolumeCapabilitiesResponse, error) {
	volumeID := req.GetVolumeId()

	_, err := s.Session.GetQuota(ctx, volumeID)
	if err == vms.ErrNotFound {
		return nil, notFoundErr("volume %q", volumeID)
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	if err := validateCapabilities(req.GetVolumeCapabilities()); err != nil {
		return &csi.ValidateVolumeCapabilitiesResponse{Message: err.Error()}, nil
	}

	return &csi.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csi.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeContext:      req.GetVolumeContext(),
			VolumeCapabilities: req.GetVolumeCapabilities(),
			Parameters:         req.GetParameters(),
		},
	}, nil
}
