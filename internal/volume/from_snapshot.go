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
	"path"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// FromSnapshot provisions a read-through volume into an existing
// snapshot: no new view or quota is created, since the data already
// lives under the source volume's <path>/.snapshot/<name> directory.
// Expand/Delete against a volume_id produced by this builder therefore
// find no quota of its own: ControllerExpandVolume responds NOT_FOUND,
// and DeleteVolume treats the absent quota as already deleted.
type FromSnapshot struct {
	Record
}

// Build resolves the source snapshot and returns a Volume whose
// volume_context carries snapshot_base_path instead of a freshly
// provisioned path.
func (b *FromSnapshot) Build(ctx context.Context) (Volume, error) {
	snap, err := b.Session.GetSnapshotByID(ctx, b.Source.SnapshotID)
	if err == vms.ErrNotFound {
		return Volume{}, csierr.NotFound("source snapshot %s not found", b.Source.SnapshotID)
	}
	if err != nil {
		return Volume{}, err
	}

	quotaLeaf := path.Base(snap.Path)
	basePath := fmtSnapshotBasePath(quotaLeaf, snap.Name)

	id := volumeID(b.Record)
	volCtx := baseVolumeContext(b.Params)
	volCtx["snapshot_base_path"] = basePath

	return Volume{
		VolumeID:      id,
		CapacityBytes: b.Capacity,
		VolumeContext: volCtx,
	}, nil
}
