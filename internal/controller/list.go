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
	"strconv"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// ListVolumes pages over VMS quotas. starting_token "invalid-token" is
// rejected unconditionally, a CSI conformance requirement independent
// of whether the VMS would actually recognize it.
func (s *Server) ListVolumes(ctx context.Context, req *csi.ListVolumesRequest) (*csi.ListVolumesResponse, error) {
	if req.GetStartingToken() == "invalid-token" {
		return nil, csierr.Aborted("invalid starting_token")
	}

	maxEntries := req.GetMaxEntries()
	if maxEntries <= 0 {
		maxEntries = 250
	}

	var page vms.Page[vms.Quota]
	var err error
	if req.GetStartingToken() != "" {
		page, err = s.Session.GetQuotasByToken(ctx, req.GetStartingToken())
	} else {
		page, err = s.Session.ListQuotas(ctx, int(maxEntries))
	}
	if err != nil {
		return nil, mapVMSError(err)
	}

	entries := make([]*csi.ListVolumesResponse_Entry, 0, len(page.Results))
	for _, q := range page.Results {
		entries = append(entries, &csi.ListVolumesResponse_Entry{
			Volume: &csi.Volume{
				VolumeId:      volumeIDRelativeTo(q.Path, s.Config.SanityTestNFSExport),
				CapacityBytes: q.HardLimit,
				VolumeContext: map[string]string{"quota_id": strconv.FormatInt(q.ID, 10)},
			},
		})
	}

	return &csi.ListVolumesResponse{
		Entries:   entries,
		NextToken: page.Next,
	}, nil
}

// volumeIDRelativeTo returns path with the root export prefix stripped,
// or "" if path does not live under root (the "escaped" case, which the
// caller reports as a null volume_id).
func volumeIDRelativeTo(p, root string) string {
	if root == "" {
		return p
	}
	rel := strings.TrimPrefix(p, root+"/")
	if rel == p {
		return ""
	}

	return rel
}
