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

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// ControllerExpandVolume grows a quota's hard_limit. A request at or
// below the current limit is a no-op; the driver never shrinks a
// volume. node_expansion_required is always false: NFS has no
// filesystem to grow on the node side.
func (s *Server) ControllerExpandVolume(
	ctx context.Context,
	req *csi.ControllerExpandVolumeRequest,
) (*csi.ControllerExpandVolumeResponse, error) {
	volumeID := req.GetVolumeId()
	required := req.GetCapacityRange().GetRequiredBytes()

	if err := s.operationLocks.GetExpandLock(volumeID); err != nil {
		return nil, csierr.Aborted("%v", err)
	}
	defer s.operationLocks.ReleaseExpandLock(volumeID)

	quota, err := s.Session.GetQuota(ctx, volumeID)
	if err == vms.ErrNotFound {
		return nil, notFoundErr("volume %q", volumeID)
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	if required <= quota.HardLimit {
		return &csi.ControllerExpandVolumeResponse{
			CapacityBytes:         quota.HardLimit,
			NodeExpansionRequired: false,
		}, nil
	}

	if err := s.Session.UpdateQuotaHardLimit(ctx, quota.ID, required); err != nil {
		if _, ok := err.(*vms.ApiError); ok {
			return nil, csierr.OutOfRange("vms rejected new capacity %d for volume %q: %v", required, volumeID, err)
		}

		return nil, mapVMSError(err)
	}

	return &csi.ControllerExpandVolumeResponse{
		CapacityBytes:         required,
		NodeExpansionRequired: false,
	}, nil
}
