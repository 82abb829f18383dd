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
	"github.com/montaguethomas/vast-csi/internal/volume"
)

const (
	paramRootExport  = "root_export"
	paramViewPolicy  = "view_policy"
	paramVIPPool     = "vip_pool_name"
	paramQosPolicy   = "qos_policy"
	paramPVCName      = "csi.storage.k8s.io/pvc/name"
	paramPVCNamespace = "csi.storage.k8s.io/pvc/namespace"
)

// requiredParams is the set of StorageClass parameters that must be
// present when the driver is not running against the mock VMS.
var requiredParams = []string{paramRootExport, paramViewPolicy, paramVIPPool}

// CreateVolume validates the request, selects a builder (mock/snapshot
// read-through/empty), and returns the provisioned Volume.
func (s *Server) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	name := req.GetName()
	if name == "" {
		return nil, csierr.InvalidArgument("name is required")
	}

	if err := validateCapabilities(req.GetVolumeCapabilities()); err != nil {
		return nil, csierr.InvalidArgument("%v", err)
	}

	if !s.volumeLocks.TryAcquire(name) {
		return nil, csierr.Aborted(VolumeOperationAlreadyExistsFmt, name)
	}
	defer s.volumeLocks.Release(name)

	if err := s.operationLocks.GetCreateLock(name); err != nil {
		return nil, csierr.Aborted("%v", err)
	}
	defer s.operationLocks.ReleaseCreateLock(name)

	params := req.GetParameters()
	if !s.Config.MockVast {
		for _, p := range requiredParams {
			if params[p] == "" {
				return nil, csierr.MissingParameter(p)
			}
		}
	}

	record := volume.Record{
		Session:      s.Session,
		Name:         name,
		Capacity:     req.GetCapacityRange().GetRequiredBytes(),
		PVCName:      params[paramPVCName],
		PVCNamespace: params[paramPVCNamespace],
		Params: volume.Params{
			RootExport:    params[paramRootExport],
			ViewPolicy:    params[paramViewPolicy],
			VIPPoolName:   params[paramVIPPool],
			MountOptions:  parseMountOptions(mountOptionsFrom(req.GetVolumeCapabilities())),
			LoadBalancing: loadBalancingOrDefault(params["lb_strategy"], s.Config.LoadBalancing),
			QosPolicy:     params[paramQosPolicy],
			VolumeNameFmt: nameFmtOrDefault(params["volume_name_fmt"], s.Config.NameFmt),
		},
	}

	if src := req.GetVolumeContentSource(); src != nil {
		if snap := src.GetSnapshot(); snap != nil && snap.GetSnapshotId() != "" {
			record.Source = &volume.Source{SnapshotID: snap.GetSnapshotId()}
		}
	}

	builder, err := volume.NewBuilder(record, s.Config.MockVast)
	if err != nil {
		return nil, err
	}
	if t, ok := builder.(*volume.Test); ok {
		t.NFSExportRoot = s.Config.SanityTestNFSExport
	}

	v, err := builder.Build(ctx)
	if err != nil {
		return nil, mapVMSError(err)
	}

	return &csi.CreateVolumeResponse{
		Volume: &csi.Volume{
			VolumeId:      v.VolumeID,
			CapacityBytes: v.CapacityBytes,
			VolumeContext: v.VolumeContext,
		},
	}, nil
}

func parseMountOptions(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		f = strings.Trim(f, "[]")
		for _, part := range strings.FieldsFunc(f, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			if part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

func loadBalancingOrDefault(v, def string) vms.LoadBalancing {
	if v == "" {
		v = def
	}
	if v == "random" {
		return vms.Random
	}

	return vms.RoundRobin
}

func nameFmtOrDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
