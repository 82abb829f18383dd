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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/montaguethomas/vast-csi/internal/vms"
)

func newMockSession(t *testing.T) *vms.MockSession {
	t.Helper()

	return vms.NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "10.0.0.1")
}

func TestVolumeIDFormatting(t *testing.T) {
	r := Record{
		Name:         "pvc-1234",
		PVCName:      "my-pvc",
		PVCNamespace: "default",
		Params:       Params{VolumeNameFmt: "{namespace}-{name}-{id}"},
	}

	require.Equal(t, "default-my-pvc-pvc-1234", volumeID(r))
}

func TestEmptyBuilderIsIdempotent(t *testing.T) {
	session := newMockSession(t)
	r := Record{
		Session:  session,
		Name:     "vol-1",
		Capacity: 1 << 30,
		Params: Params{
			RootExport: "/csi-volumes",
			ViewPolicy: "default",
			VolumeNameFmt: "{id}",
		},
	}

	b := &Empty{Record: r}
	v1, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, "vol-1", v1.VolumeID)
	require.Equal(t, int64(1<<30), v1.CapacityBytes)

	v2, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, v1.VolumeID, v2.VolumeID)
	require.Equal(t, v1.CapacityBytes, v2.CapacityBytes)
}

func TestEmptyBuilderCapacityMismatchConflicts(t *testing.T) {
	session := newMockSession(t)
	params := Params{RootExport: "/csi-volumes", ViewPolicy: "default", VolumeNameFmt: "{id}"}

	first := &Empty{Record: Record{Session: session, Name: "vol-2", Capacity: 1 << 30, Params: params}}
	_, err := first.Build(context.Background())
	require.NoError(t, err)

	second := &Empty{Record: Record{Session: session, Name: "vol-2", Capacity: 2 << 30, Params: params}}
	_, err = second.Build(context.Background())
	require.Error(t, err)
}

func TestFromSnapshotBuilderSourceNotFound(t *testing.T) {
	session := newMockSession(t)
	r := Record{
		Session: session,
		Name:    "vol-3",
		Source:  &Source{SnapshotID: "999"},
		Params:  Params{RootExport: "/csi-volumes", VolumeNameFmt: "{id}"},
	}

	b := &FromSnapshot{Record: r}
	_, err := b.Build(context.Background())
	require.Error(t, err)
}

func TestFromSnapshotBuilderReadThrough(t *testing.T) {
	session := newMockSession(t)
	snap, err := session.EnsureSnapshot(context.Background(), "snap-1", "/csi-volumes/source-vol", 0)
	require.NoError(t, err)

	r := Record{
		Session: session,
		Name:    "vol-4",
		Source:  &Source{SnapshotID: "1"},
		Params:  Params{RootExport: "/csi-volumes", VolumeNameFmt: "{id}"},
	}
	require.NotZero(t, snap.ID)

	b := &FromSnapshot{Record: r}
	v, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, "vol-4", v.VolumeID)
	require.Contains(t, v.VolumeContext["snapshot_base_path"], "snap-1")
}

func TestTestBuilderCreatesFakeDirectory(t *testing.T) {
	session := newMockSession(t)
	exportRoot := t.TempDir()

	b := &Test{
		Record: Record{
			Session:  session,
			Name:     "vol-5",
			Capacity: 1 << 20,
			Params:   Params{RootExport: "/csi-volumes", VolumeNameFmt: "{id}"},
		},
		NFSExportRoot: exportRoot,
	}

	v, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, "vol-5", v.VolumeID)
}

func TestNewBuilderSelectsStrategy(t *testing.T) {
	session := newMockSession(t)

	b, err := NewBuilder(Record{Session: session, Name: "x"}, true)
	require.NoError(t, err)
	require.IsType(t, &Test{}, b)

	b, err = NewBuilder(Record{Session: session, Name: "x"}, false)
	require.NoError(t, err)
	require.IsType(t, &Empty{}, b)

	b, err = NewBuilder(Record{Session: session, Name: "x", Source: &Source{SnapshotID: "1"}}, false)
	require.NoError(t, err)
	require.IsType(t, &FromSnapshot{}, b)

	_, err = NewBuilder(Record{Session: session, Name: "x", Source: &Source{}}, false)
	require.Error(t, err)
}
