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
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// ControllerPublishVolume resolves the quota backing volume_id (or its
// snapshot_base_path, for a read-through volume) and hands the node a
// server IP plus export path to mount.
func (s *Server) ControllerPublishVolume(
	ctx context.Context,
	req *csi.ControllerPublishVolumeRequest,
) (*csi.ControllerPublishVolumeResponse, error) {
	if req.GetNodeId() == "" {
		return nil, csierr.InvalidArgument("node_id is required")
	}
	if err := validateCapabilities([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, csierr.InvalidArgument("%v", err)
	}

	volumeID := req.GetVolumeId()
	volCtx := req.GetVolumeContext()

	var quotaPathFragment, exportPath string
	rootExport := volCtx["root_export"]
	if base, ok := volCtx["snapshot_base_path"]; ok && base != "" {
		quotaPathFragment = strings.SplitN(base, "/", 2)[0]
		exportPath = rootExport + "/" + base
	} else {
		quotaPathFragment = volumeID
		exportPath = rootExport + "/" + volumeID
	}

	quota, err := s.Session.GetQuota(ctx, quotaPathFragment)
	if err == vms.ErrNotFound {
		return nil, notFoundErr("quota for volume %q", quotaPathFragment)
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	lb := loadBalancingOrDefault(volCtx["load_balancing"], string(vms.RoundRobin))
	vip, err := s.Session.GetVIP(ctx, volCtx["vip_pool_name"], lb, quota.TenantID)
	if err != nil {
		return nil, mapVMSError(err)
	}

	return &csi.ControllerPublishVolumeResponse{
		PublishContext: map[string]string{
			"export_path":    exportPath,
			"nfs_server_ip":  vip,
		},
	}, nil
}

// ControllerUnpublishVolume is a no-op: there is no server-side state
// scoped to a single publish to release.
func (s *Server) ControllerUnpublishVolume(
	ctx context.Context,
	req *csi.ControllerUnpublishVolumeRequest,
) (*csi.ControllerUnpublishVolumeResponse, error) {
	return &csi.ControllerUnpublishVolumeResponse{}, nil
}
