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

package volume

import (
	"context"

	"github.com/montaguethomas/vast-csi/internal/csierr"
)

// Empty provisions a fresh, empty volume: a new view and quota rooted at
// <root_export>/<volume_id>.
type Empty struct {
	Record
}

// Build ensures the view policy, view and quota exist, in that order,
// and is idempotent under CreateVolume retries with the same name.
func (b *Empty) Build(ctx context.Context) (Volume, error) {
	id := volumeID(b.Record)
	targetPath := quotaPath(b.Params.RootExport, id)

	policy, err := b.Session.ViewPolicyByName(ctx, b.Params.ViewPolicy)
	if err != nil {
		return Volume{}, err
	}

	if _, err := b.Session.EnsureView(ctx, targetPath, policy.ID, b.TenantID); err != nil {
		return Volume{}, err
	}

	existing, err := b.Session.GetQuotasByPath(ctx, targetPath)
	if err != nil {
		return Volume{}, err
	}
	if len(existing) > 0 {
		q := existing[0]
		if q.HardLimit != b.Capacity {
			return Volume{}, csierr.AlreadyExists(
				"volume %q already exists with capacity %d, requested %d", id, q.HardLimit, b.Capacity)
		}

		return b.toVolume(id, q.HardLimit), nil
	}

	q, err := b.Session.CreateQuota(ctx, targetPath, b.Capacity, b.TenantID, id)
	if err != nil {
		return Volume{}, err
	}

	return b.toVolume(id, q.HardLimit), nil
}

func (b *Empty) toVolume(id string, hardLimit int64) Volume {
	return Volume{
		VolumeID:      id,
		CapacityBytes: hardLimit,
		VolumeContext: baseVolumeContext(b.Params),
	}
}
