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

// Package vms implements the driver's REST client to the clustered NAS
// appliance (the "VMS"): auth token refresh, paginated resource
// accessors, VIP selection, and a mock implementation used by sanity
// tests and csi-sanity. Session is the seam the rest of the driver
// depends on, so production and mock code never branch on a boolean
// inside a handler.
package vms

import (
	"context"
)

// Session is everything the controller, the node service and the volume
// builders need from the storage appliance. Two implementations exist:
// HTTPSession talks to a real VMS over REST, MockSession simulates one
// entirely on the local filesystem for sanity and unit tests.
type Session interface {
	// RefreshAuthToken obtains or renews the bearer token. Called once
	// at session start and again whenever a request comes back 401.
	RefreshAuthToken(ctx context.Context) error

	// GetVIP returns one NFS server address from vipPoolName, scoped to
	// tenantID, chosen according to lb.
	GetVIP(ctx context.Context, vipPoolName string, lb LoadBalancing, tenantID int64) (string, error)

	// Quotas
	ListQuotas(ctx context.Context, pageSize int) (Page[Quota], error)
	CreateQuota(ctx context.Context, path string, hardLimit int64, tenantID int64, name string) (Quota, error)
	GetQuota(ctx context.Context, volumeID string) (*Quota, error)
	GetQuotasByPath(ctx context.Context, path string) ([]Quota, error)
	UpdateQuotaHardLimit(ctx context.Context, quotaID int64, hardLimit int64) error
	DeleteQuota(ctx context.Context, quotaID int64) error

	// Views
	EnsureView(ctx context.Context, path string, policyID, tenantID int64) (View, error)
	FindViewByPath(ctx context.Context, path string) (*View, error)
	DeleteViewByPath(ctx context.Context, path string) error
	CreateTempView(ctx context.Context, path string, policyID, tenantID int64) (View, error)
	DeleteView(ctx context.Context, viewID int64) error

	// View policies
	ViewPolicyByName(ctx context.Context, name string) (ViewPolicy, error)

	// Snapshots
	ListSnapshots(ctx context.Context, pageSize int) (Page[Snapshot], error)
	HasSnapshots(ctx context.Context, path string) (bool, error)
	EnsureSnapshot(ctx context.Context, name, path string, tenantID int64) (Snapshot, error)
	GetSnapshotByName(ctx context.Context, name string) (*Snapshot, error)
	GetSnapshotByID(ctx context.Context, id string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error

	// Pagination: follow an opaque "next" URL returned by any listing
	// endpoint above. Used verbatim as the CSI starting_token.
	GetQuotasByToken(ctx context.Context, token string) (Page[Quota], error)
	GetSnapshotsByToken(ctx context.Context, token string) (Page[Snapshot], error)

	// Data deletion strategy selection.
	IsTrashAPIUsable(ctx context.Context) bool
	DeleteFolder(ctx context.Context, path string, tenantID int64) error
}
