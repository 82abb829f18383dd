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

package vms

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockCreateGetDeleteQuotaRoundTrip(t *testing.T) {
	m := NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "127.0.0.1")
	ctx := context.Background()

	created, err := m.CreateQuota(ctx, "/csi-volumes/vol-1", 10, 1, "vol-1")
	require.NoError(t, err)

	got, err := m.GetQuota(ctx, "vol-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "/csi-volumes/vol-1", got.Path)

	require.NoError(t, m.DeleteQuota(ctx, created.ID))

	// Deleted and re-fetched: no ErrNotFound, a synthetic quota instead
	// (SPEC_FULL.md §13's mock quota lookup decision).
	got, err = m.GetQuota(ctx, "vol-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), got.ID)
}

func TestMockGetQuotaSynthesizesUnprovisionedVolume(t *testing.T) {
	exportRoot := t.TempDir()
	m := NewMockSession(t.TempDir(), t.TempDir(), exportRoot, "127.0.0.1")

	got, err := m.GetQuota(context.Background(), "never-created")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(exportRoot, "never-created"), got.Path)
}

func TestMockDeleteQuotaOfSyntheticIDIsNoop(t *testing.T) {
	m := NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "127.0.0.1")

	require.NoError(t, m.DeleteQuota(context.Background(), 0))
}

func TestMockGetVIPRequiresFakeServer(t *testing.T) {
	m := NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "")

	_, err := m.GetVIP(context.Background(), "pool-1", RoundRobin, 0)
	require.Error(t, err)

	m2 := NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "10.0.0.1")
	vip, err := m2.GetVIP(context.Background(), "pool-1", RoundRobin, 0)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", vip)
}

func TestMockSnapshotLifecycle(t *testing.T) {
	m := NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "127.0.0.1")
	ctx := context.Background()

	snap, err := m.EnsureSnapshot(ctx, "snap-1", "/csi-volumes/vol-1", 1)
	require.NoError(t, err)

	// EnsureSnapshot is idempotent.
	again, err := m.EnsureSnapshot(ctx, "snap-1", "/csi-volumes/vol-1", 1)
	require.NoError(t, err)
	require.Equal(t, snap.ID, again.ID)

	has, err := m.HasSnapshots(ctx, "/csi-volumes/vol-1")
	require.NoError(t, err)
	require.True(t, has)

	byID, err := m.GetSnapshotByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "snap-1", byID.Name)

	require.NoError(t, m.DeleteSnapshot(ctx, "1"))
	_, err = m.GetSnapshotByName(ctx, "snap-1")
	require.Equal(t, ErrNotFound, err)
}
