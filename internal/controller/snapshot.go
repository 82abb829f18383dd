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
	"path"
	"strconv"
	"strings"

	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

const defaultSnapshotNameFmt = "{namespace}-{name}-{id}"

// CreateSnapshot derives a display name from the reserved
// csi.storage.k8s.io/volumesnapshot parameters, then creates or
// idempotently confirms a matching VMS snapshot on the source volume's
// path.
func (s *Server) CreateSnapshot(ctx context.Context, req *csi.CreateSnapshotRequest) (*csi.CreateSnapshotResponse, error) {
	sourceVolumeID := req.GetSourceVolumeId()
	if sourceVolumeID == "" {
		return nil, csierr.InvalidArgument("source_volume_id is required")
	}

	if err := s.operationLocks.GetSnapshotCreateLock(sourceVolumeID); err != nil {
		return nil, csierr.Aborted("%v", err)
	}
	defer s.operationLocks.ReleaseSnapshotCreateLock(sourceVolumeID)

	quota, err := s.Session.GetQuota(ctx, sourceVolumeID)
	if err == vms.ErrNotFound {
		return nil, notFoundErr("volume %q", sourceVolumeID)
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	params := req.GetParameters()
	name := snapshotDisplayName(req.GetName(), params)

	existing, err := s.Session.GetSnapshotByName(ctx, name)
	if err == nil {
		if existing.Path != quota.Path {
			return nil, csierr.AlreadyExists("snapshot %q already exists for a different source volume", name)
		}

		return snapshotResponse(*existing, sourceVolumeID), nil
	}
	if err != vms.ErrNotFound {
		return nil, mapVMSError(err)
	}

	snap, err := s.Session.EnsureSnapshot(ctx, name, quota.Path, quota.TenantID)
	if err != nil {
		if apiErr, ok := err.(*vms.ApiError); ok {
			return nil, csierr.InvalidArgument("creating snapshot %q: %v", name, apiErr)
		}

		return nil, mapVMSError(err)
	}

	return snapshotResponse(snap, sourceVolumeID), nil
}

// snapshotDisplayName renders the snapshot_name_fmt template with the
// reserved VolumeSnapshot parameters and the CSI request name, replacing
// ':' and '/' (illegal in a NAS path component).
func snapshotDisplayName(csiName string, params map[string]string) string {
	fmtStr := params["snapshot_name_fmt"]
	if fmtStr == "" {
		fmtStr = defaultSnapshotNameFmt
	}
	out := strings.ReplaceAll(fmtStr, "{namespace}", params["csi.storage.k8s.io/volumesnapshot/namespace"])
	out = strings.ReplaceAll(out, "{name}", params["csi.storage.k8s.io/volumesnapshot/name"])
	out = strings.ReplaceAll(out, "{id}", csiName)
	out = strings.ReplaceAll(out, ":", "-")
	out = strings.ReplaceAll(out, "/", "-")

	return out
}

func snapshotResponse(snap vms.Snapshot, sourceVolumeID string) *csi.CreateSnapshotResponse {
	return &csi.CreateSnapshotResponse{
		Snapshot: &csi.Snapshot{
			SizeBytes:      0,
			SnapshotId:     strconv.FormatInt(snap.ID, 10),
			SourceVolumeId: sourceVolumeID,
			CreationTime:   timestamppb.New(snap.Created),
			ReadyToUse:     true,
		},
	}
}

// DeleteSnapshot removes the VMS snapshot record and, if nothing else
// references its path, also removes the underlying directory via the
// same data-deletion path DeleteVolume uses.
func (s *Server) DeleteSnapshot(ctx context.Context, req *csi.DeleteSnapshotRequest) (*csi.DeleteSnapshotResponse, error) {
	snapshotID := req.GetSnapshotId()
	if snapshotID == "" {
		return &csi.DeleteSnapshotResponse{}, nil
	}

	if err := s.operationLocks.GetSnapshotDeleteLock(snapshotID); err != nil {
		return nil, csierr.Aborted("%v", err)
	}
	defer s.operationLocks.ReleaseSnapshotDeleteLock(snapshotID)

	snap, err := s.Session.GetSnapshotByID(ctx, snapshotID)
	if err == vms.ErrNotFound {
		return &csi.DeleteSnapshotResponse{}, nil
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	if err := s.Session.DeleteSnapshot(ctx, snapshotID); err != nil {
		return nil, mapVMSError(err)
	}

	remainingQuotas, err := s.Session.GetQuotasByPath(ctx, snap.Path)
	if err != nil {
		return nil, mapVMSError(err)
	}
	remainingSnaps, err := s.Session.HasSnapshots(ctx, snap.Path)
	if err != nil {
		return nil, mapVMSError(err)
	}

	if len(remainingQuotas) == 0 && !remainingSnaps {
		if err := s.deleteData(ctx, snap.Path, snap.TenantID); err != nil {
			return nil, err
		}
	}

	return &csi.DeleteSnapshotResponse{}, nil
}

// ListSnapshots pages over VMS snapshots, or returns a single-entry page
// when snapshot_id is set and no pagination is in progress.
func (s *Server) ListSnapshots(ctx context.Context, req *csi.ListSnapshotsRequest) (*csi.ListSnapshotsResponse, error) {
	if req.GetStartingToken() == "invalid-token" {
		return nil, csierr.Aborted("invalid starting_token")
	}

	if req.GetSnapshotId() != "" && req.GetStartingToken() == "" {
		snap, err := s.Session.GetSnapshotByID(ctx, req.GetSnapshotId())
		if err == vms.ErrNotFound {
			return &csi.ListSnapshotsResponse{}, nil
		}
		if err != nil {
			return nil, mapVMSError(err)
		}

		return &csi.ListSnapshotsResponse{
			Entries: []*csi.ListSnapshotsResponse_Entry{snapshotEntry(*snap)},
		}, nil
	}

	maxEntries := req.GetMaxEntries()
	if maxEntries <= 0 {
		maxEntries = 250
	}

	var page vms.Page[vms.Snapshot]
	var err error
	if req.GetStartingToken() != "" {
		page, err = s.Session.GetSnapshotsByToken(ctx, req.GetStartingToken())
	} else {
		page, err = s.Session.ListSnapshots(ctx, int(maxEntries))
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	entries := make([]*csi.ListSnapshotsResponse_Entry, 0, len(page.Results))
	for _, snap := range page.Results {
		if req.GetSourceVolumeId() != "" && path.Base(snap.Path) != req.GetSourceVolumeId() {
			continue
		}
		entries = append(entries, snapshotEntry(snap))
	}

	return &csi.ListSnapshotsResponse{
		Entries:   entries,
		NextToken: page.Next,
	}, nil
}

func snapshotEntry(snap vms.Snapshot) *csi.ListSnapshotsResponse_Entry {
	sourceVolumeID := "n/a"
	if snap.Path != "" {
		sourceVolumeID = path.Base(snap.Path)
	}

	return &csi.ListSnapshotsResponse_Entry{
		Snapshot: &csi.Snapshot{
			SizeBytes:      0,
			SnapshotId:     strconv.FormatInt(snap.ID, 10),
			SourceVolumeId: sourceVolumeID,
			CreationTime:   timestamppb.New(snap.Created),
			ReadyToUse:     true,
		},
	}
}
