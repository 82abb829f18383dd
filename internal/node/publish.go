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
	"fmt"
	"os"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/log"
)

const ephemeralContextKey = "csi.storage.k8s.io/ephemeral"

// NodePublishVolume reconciles the target directory's mount state
// against the request, creating and mounting it if absent, confirming
// an idempotent no-op if already correctly mounted, or failing with
// ALREADY_EXISTS if mounted differently.
func (s *Server) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	targetPath := req.GetTargetPath()
	if targetPath == "" {
		return nil, csierr.InvalidArgument("target_path is required")
	}

	volumeContext := req.GetVolumeContext()
	isEphemeral := volumeContext[ephemeralContextKey] == "true"

	volumeID := req.GetVolumeId()
	publishContext := req.GetPublishContext()

	if isEphemeral {
		var err error
		volumeID, volumeContext, publishContext, err = s.provisionEphemeral(ctx, req)
		if err != nil {
			return nil, err
		}
	} else if req.GetVolumeCapability() == nil {
		return nil, csierr.InvalidArgument("volume_capability is required")
	}

	nfsServerIP := publishContext["nfs_server_ip"]
	exportPath := publishContext["export_path"]
	if volumeContext["schema"] == "2" {
		if v, ok := volumeContext["export_path"]; ok {
			exportPath = v
		}
	}
	mountSpec := fmt.Sprintf("%s:%s", nfsServerIP, exportPath)

	info, statErr := os.Stat(targetPath)
	if statErr == nil && info.IsDir() {
		mounted, err := s.Mount.IsMountPoint(targetPath)
		if err != nil {
			return nil, csierr.Unknown("checking mount state of %s: %v", targetPath, err)
		}
		if mounted {
			device, opts, err := s.Mount.DeviceAt(targetPath)
			if err != nil {
				return nil, csierr.Unknown("inspecting mount at %s: %v", targetPath, err)
			}
			if device == mountSpec && hasReadOnly(opts) == req.GetReadonly() {
				return &csi.NodePublishVolumeResponse{}, nil
			}

			return nil, csierr.AlreadyExists(
				"target %s already mounted from %s, requested %s", targetPath, device, mountSpec)
		}
	}

	if err := s.Mount.CreateDir(targetPath); err != nil {
		return nil, csierr.Unknown("creating target directory %s: %v", targetPath, err)
	}

	if err := writeSidecar(targetPath, sidecar{VolumeID: volumeID, IsEphemeral: isEphemeral}); err != nil {
		return nil, csierr.Unknown("writing sidecar for %s: %v", targetPath, err)
	}

	options := mountOptions(req, volumeContext)

	if err := s.Mount.Mount(mountSpec, targetPath, "nfs", options); err != nil {
		return nil, csierr.Unknown("mounting %s at %s: %v", mountSpec, targetPath, err)
	}

	return &csi.NodePublishVolumeResponse{}, nil
}

func hasReadOnly(opts []string) bool {
	for _, o := range opts {
		if o == "ro" {
			return true
		}
	}

	return false
}

func mountOptions(req *csi.NodePublishVolumeRequest, volumeContext map[string]string) []string {
	var options []string
	if req.GetReadonly() {
		options = append(options, "ro")
	}
	if mnt := req.GetVolumeCapability().GetMount(); mnt != nil && len(mnt.GetMountFlags()) > 0 {
		options = append(options, mnt.GetMountFlags()...)

		return options
	}
	if raw, ok := volumeContext["mount_options"]; ok && raw != "" {
		options = append(options, strings.Split(raw, ",")...)
	}

	return options
}

// provisionEphemeral invokes the inline Controller to create and
// publish an ephemeral volume, bypassing the gRPC wire entirely (the
// Controller service may not even be registered on this process).
func (s *Server) provisionEphemeral(
	ctx context.Context,
	req *csi.NodePublishVolumeRequest,
) (volumeID string, volumeContext, publishContext map[string]string, err error) {
	if s.controller == nil {
		return "", nil, nil, csierr.Unknown("ephemeral volume support requires an inline controller")
	}

	volCtx := req.GetVolumeContext()

	var requiredBytes int64
	if sizeStr, ok := volCtx["size"]; ok && sizeStr != "" {
		qty, qerr := resource.ParseQuantity(sizeStr)
		if qerr != nil {
			return "", nil, nil, csierr.InvalidArgument("parsing ephemeral volume size %q: %v", sizeStr, qerr)
		}
		requiredBytes = qty.Value()
	}

	name := ephemeralName(s.Config.EphVolumeNameFmt, volCtx)

	createResp, cerr := s.controller.CreateVolume(ctx, &csi.CreateVolumeRequest{
		Name:               name,
		VolumeCapabilities: []*csi.VolumeCapability{req.GetVolumeCapability()},
		CapacityRange:      &csi.CapacityRange{RequiredBytes: requiredBytes},
		Parameters:         volCtx,
	})
	if cerr != nil {
		return "", nil, nil, cerr
	}

	log.DefaultLog(ctx, "provisioned ephemeral volume %s", createResp.GetVolume().GetVolumeId())

	publishResp, perr := s.controller.ControllerPublishVolume(ctx, &csi.ControllerPublishVolumeRequest{
		VolumeId:         createResp.GetVolume().GetVolumeId(),
		NodeId:           s.Config.NodeID,
		VolumeCapability: req.GetVolumeCapability(),
		VolumeContext:    createResp.GetVolume().GetVolumeContext(),
	})
	if perr != nil {
		return "", nil, nil, perr
	}

	return createResp.GetVolume().GetVolumeId(),
		createResp.GetVolume().GetVolumeContext(),
		publishResp.GetPublishContext(),
		nil
}

func ephemeralName(fmtStr string, volCtx map[string]string) string {
	out := strings.ReplaceAll(fmtStr, "{namespace}", volCtx["csi.storage.k8s.io/pod.namespace"])
	out = strings.ReplaceAll(out, "{name}", volCtx["csi.storage.k8s.io/pod.name"])
	out = strings.ReplaceAll(out, "{id}", volCtx["csi.storage.k8s.io/pod.uid"])

	return out
}
