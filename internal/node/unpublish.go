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

package node

import (
	"context"
	"os"

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/log"
	csimount "github.com/montaguethomas/vast-csi/internal/mount"
)

// NodeUnpublishVolume unmounts target_path with a bounded retry loop,
// then deletes an ephemeral volume's backing data inline and removes
// the target directory. A missing target_path is treated as already
// unpublished.
func (s *Server) NodeUnpublishVolume(
	ctx context.Context,
	req *csi.NodeUnpublishVolumeRequest,
) (*csi.NodeUnpublishVolumeResponse, error) {
	targetPath := req.GetTargetPath()
	if targetPath == "" {
		return nil, csierr.InvalidArgument("target_path is required")
	}

	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		return &csi.NodeUnpublishVolumeResponse{}, nil
	}

	attempts := s.Config.UnmountAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		mounted, err := s.Mount.IsMountPoint(targetPath)
		if err != nil {
			return nil, csierr.Unknown("checking mount state of %s: %v", targetPath, err)
		}
		if !mounted {
			break
		}

		err = s.Mount.Unmount(targetPath)
		if err == nil {
			break
		}
		if csimount.IsNotMountedErr(err) {
			break
		}
		if i == attempts-1 {
			return nil, csierr.Unknown("stuck in unmount loop for %s: %v", targetPath, err)
		}
		log.WarningLog(ctx, "unmount attempt %d/%d failed for %s: %v", i+1, attempts, targetPath, err)
	}

	meta, err := readSidecar(targetPath)
	if err != nil {
		return nil, csierr.Unknown("reading sidecar for %s: %v", targetPath, err)
	}

	if meta != nil && meta.IsEphemeral {
		if s.controller == nil {
			return nil, csierr.Unknown("ephemeral volume cleanup requires an inline controller")
		}
		if _, err := s.controller.DeleteVolume(ctx, &csi.DeleteVolumeRequest{VolumeId: meta.VolumeID}); err != nil {
			return nil, err
		}
		log.DefaultLog(ctx, "deleted ephemeral volume %s", meta.VolumeID)
	}

	if err := removeSidecar(targetPath); err != nil {
		return nil, csierr.Unknown("removing sidecar for %s: %v", targetPath, err)
	}

	if err := os.Remove(targetPath); err != nil {
		return nil, csierr.Unknown("removing target directory %s: %v", targetPath, err)
	}

	return &csi.NodeUnpublishVolumeResponse{}, nil
}
