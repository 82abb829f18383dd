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

// Package volume implements the provisioning strategy family CreateVolume
// selects among: Empty (fresh quota+view), FromSnapshot (read-through
// into an existing snapshot, no new quota/view), and Test (local fake
// store, no VMS calls at all). All three share one construction record
// and expose a single Build operation.
package volume

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// Volume is the provisioned unit CreateVolume and the ephemeral inline
// path return to their caller.
type Volume struct {
	VolumeID      string
	CapacityBytes int64
	VolumeContext map[string]string
}

// Source describes the CSI volume_content_source, when present. Only
// snapshot sources are supported; a non-nil Source with an empty
// SnapshotID is a caller bug, rejected at construction.
type Source struct {
	SnapshotID string
}

// Params are the storage-class-level options threaded through every
// builder, with config-level defaults already resolved by the caller.
type Params struct {
	RootExport    string
	ViewPolicy    string
	VIPPoolName   string
	MountOptions  []string
	LoadBalancing vms.LoadBalancing
	QosPolicy     string
	VolumeNameFmt string
}

// Record is the common construction record every builder is built from.
type Record struct {
	Session      vms.Session
	Name         string // CSI request name, or ephemeral_volume_name
	Capacity     int64  // required_bytes from capacity_range
	PVCName      string
	PVCNamespace string
	Source       *Source
	Params       Params
	TenantID     int64
}

// Builder produces a Volume from a Record. Selected once per CreateVolume
// call and discarded.
type Builder interface {
	Build(ctx context.Context) (Volume, error)
}

// volumeID renders Params.VolumeNameFmt with {namespace}/{name}/{id}.
func volumeID(r Record) string {
	fmtStr := r.Params.VolumeNameFmt
	if fmtStr == "" {
		fmtStr = "{namespace}-{name}-{id}"
	}
	out := strings.ReplaceAll(fmtStr, "{namespace}", r.PVCNamespace)
	out = strings.ReplaceAll(out, "{name}", r.PVCName)
	out = strings.ReplaceAll(out, "{id}", sanitize(r.Name))

	return sanitize(out)
}

// sanitize makes s safe to use as a single path component.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")

	return s
}

func baseVolumeContext(p Params) map[string]string {
	ctx := map[string]string{
		"root_export":   p.RootExport,
		"vip_pool_name":  p.VIPPoolName,
		"load_balancing": string(p.LoadBalancing),
		"mount_options":  strings.Join(p.MountOptions, ","),
	}
	if p.QosPolicy != "" {
		ctx["qos_policy"] = p.QosPolicy
	}

	return ctx
}

// NewBuilder selects the strategy: Test when mock is forced,
// FromSnapshot when the content source names a snapshot, Empty
// otherwise. A Source with an empty SnapshotID is a construction error.
func NewBuilder(r Record, mock bool) (Builder, error) {
	if mock {
		return &Test{Record: r}, nil
	}
	if r.Source != nil {
		if r.Source.SnapshotID == "" {
			return nil, csierr.InvalidArgument("volume_content_source set without a snapshot id")
		}

		return &FromSnapshot{Record: r}, nil
	}

	return &Empty{Record: r}, nil
}

// quotaPath returns the absolute path a volume's quota/view is rooted
// at: <root_export>/<volume_id>.
func quotaPath(rootExport, volumeID string) string {
	return path.Join(rootExport, volumeID)
}

func tenantIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func fmtSnapshotBasePath(quotaLeaf, snapshotName string) string {
	return fmt.Sprintf("%s/.snapshot/%s", quotaLeaf, snapshotName)
}
