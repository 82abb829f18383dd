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
	"os"
	"path/filepath"

	"github.com/montaguethomas/vast-csi/internal/csierr"
)

// Test provisions a volume entirely against the mock VMS session and,
// when a sanity-test NFS export root is configured, also creates the
// backing directory so the fake server can actually serve it over NFS.
// It deliberately skips the quota-existence validation the Empty
// builder performs: the mock's quota store is a convenience record for
// Delete/Expand to find, not a capacity-accounting simulation.
type Test struct {
	Record
	// NFSExportRoot, when non-empty, is the real filesystem directory
	// the fake NFS server exports; Build mkdirs the volume's directory
	// under it so a loopback mount can actually succeed.
	NFSExportRoot string
}

// Build writes a fake quota record and, if configured, a real directory.
func (b *Test) Build(ctx context.Context) (Volume, error) {
	id := volumeID(b.Record)
	targetPath := quotaPath(b.Params.RootExport, id)

	q, err := b.Session.CreateQuota(ctx, targetPath, b.Capacity, b.TenantID, id)
	if err != nil {
		return Volume{}, err
	}

	if b.NFSExportRoot != "" {
		dir := filepath.Join(b.NFSExportRoot, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Volume{}, csierr.Unknown("creating fake volume directory %s: %v", dir, err)
		}
	}

	return Volume{
		VolumeID:      id,
		CapacityBytes: q.HardLimit,
		VolumeContext: baseVolumeContext(b.Params),
	}, nil
}
