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
	"errors"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/log"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// unmountedSentinel is written into the temporary mount directory before
// mounting, so a mount that silently fails to attach leaves the sentinel
// visible and detectable, instead of the driver deleting data out of an
// empty local directory.
const unmountedSentinel = ".csi-unmounted"

// DeleteVolume removes a volume's data, view and quota, in that
// mandatory order: reversing it would orphan a view pointing at a
// missing path. Absence of the quota is treated as success.
func (s *Server) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, csierr.InvalidArgument("volume_id is required")
	}

	if !s.volumeLocks.TryAcquire(volumeID) {
		return nil, csierr.Aborted(VolumeOperationAlreadyExistsFmt, volumeID)
	}
	defer s.volumeLocks.Release(volumeID)

	if err := s.operationLocks.GetDeleteLock(volumeID); err != nil {
		return nil, csierr.Aborted("%v", err)
	}
	defer s.operationLocks.ReleaseDeleteLock(volumeID)

	quota, err := s.Session.GetQuota(ctx, volumeID)
	if err == vms.ErrNotFound {
		return &csi.DeleteVolumeResponse{}, nil
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	if err := s.deleteData(ctx, quota.Path, quota.TenantID); err != nil {
		return nil, err
	}

	if err := s.Session.DeleteViewByPath(ctx, quota.Path); err != nil {
		return nil, mapVMSError(err)
	}

	if err := s.Session.DeleteQuota(ctx, quota.ID); err != nil {
		return nil, mapVMSError(err)
	}

	return &csi.DeleteVolumeResponse{}, nil
}

// deleteData removes the directory at path, preferring the VMS trash API
// and falling back to a temporary client-side NFS mount when the
// appliance does not expose it.
func (s *Server) deleteData(ctx context.Context, volPath string, tenantID int64) error {
	if s.Session.IsTrashAPIUsable(ctx) {
		if err := s.Session.DeleteFolder(ctx, volPath, tenantID); err != nil {
			return mapVMSError(err)
		}

		return nil
	}

	return s.deleteDataViaClientMount(ctx, volPath, tenantID)
}

func (s *Server) deleteDataViaClientMount(ctx context.Context, volPath string, tenantID int64) error {
	policy, err := s.Session.ViewPolicyByName(ctx, s.Config.DeletionViewPolicy)
	if err != nil {
		return mapVMSError(err)
	}

	vip, err := s.Session.GetVIP(ctx, s.Config.DeletionVIPPool, vms.LoadBalancing(s.Config.LoadBalancing), policy.TenantID)
	if err != nil {
		return mapVMSError(err)
	}

	parentDir := path.Dir(volPath)
	leaf := path.Base(volPath)

	tempView, err := s.Session.CreateTempView(ctx, parentDir, policy.ID, policy.TenantID)
	if err != nil {
		return mapVMSError(err)
	}
	defer func() {
		if derr := s.Session.DeleteView(ctx, tempView.ID); derr != nil {
			log.ErrorLog(ctx, "failed to remove temporary deletion view %d: %v", tempView.ID, derr)
		}
	}()

	tempDir := filepath.Join(os.TempDir(), "vast-csi-delete-"+uuid.NewString())
	if err := os.Mkdir(tempDir, 0o700); err != nil {
		return csierr.Unknown("creating temporary mount directory: %v", err)
	}
	defer func() {
		// Best-effort cleanup of the sentinel and the temp dir. os.Remove
		// never descends, so a mount that failed to detach is left alone.
		_ = os.Remove(filepath.Join(tempDir, unmountedSentinel))
		_ = os.Remove(tempDir)
	}()

	sentinel := filepath.Join(tempDir, unmountedSentinel)
	if err := os.WriteFile(sentinel, nil, 0o600); err != nil {
		return csierr.Unknown("writing unmount sentinel: %v", err)
	}

	mountSpec := vip + ":" + tempView.Path
	if err := s.Mount.Mount(mountSpec, tempDir, "nfs", nil); err != nil {
		return csierr.Unknown("mounting %s for deletion: %v", mountSpec, err)
	}
	defer func() {
		if uerr := s.Mount.Unmount(tempDir); uerr != nil {
			log.ErrorLog(ctx, "failed to unmount temporary deletion mount %s: %v", tempDir, uerr)
		}
	}()

	if _, err := os.Stat(sentinel); err == nil {
		return csierr.Unknown("mount of %s did not attach, sentinel still visible", mountSpec)
	}

	leafPath := filepath.Join(tempDir, leaf)
	err = os.RemoveAll(leafPath)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ENOENT):
		return csierr.Aborted("concurrent deletion detected for %s", volPath)
	case errors.Is(err, syscall.ENOTEMPTY):
		hasSnaps, serr := s.Session.HasSnapshots(ctx, volPath)
		if serr != nil {
			return mapVMSError(serr)
		}
		if hasSnaps {
			log.DefaultLog(ctx, "leaving %s in place, remaining entries are snapshots", volPath)

			return nil
		}

		return csierr.Unknown("directory %s not empty and remaining entries are not snapshots", volPath)
	default:
		return csierr.Unknown("removing %s: %v", leafPath, err)
	}
}
