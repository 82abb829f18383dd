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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVolumeLocks(t *testing.T) {
	vl := NewVolumeLocks()

	require.True(t, vl.TryAcquire("vol-1"))
	require.False(t, vl.TryAcquire("vol-1"))

	vl.Release("vol-1")
	require.True(t, vl.TryAcquire("vol-1"))
}

func TestOperationLockExpandRejectsWhileDeleteInFlight(t *testing.T) {
	ol := NewOperationLock()

	require.NoError(t, ol.GetDeleteLock("vol-1"))
	require.Error(t, ol.GetExpandLock("vol-1"))

	ol.ReleaseDeleteLock("vol-1")
	require.NoError(t, ol.GetExpandLock("vol-1"))
	ol.ReleaseExpandLock("vol-1")
}

func TestOperationLockDeleteRejectsWhileExpandInFlight(t *testing.T) {
	ol := NewOperationLock()

	require.NoError(t, ol.GetExpandLock("vol-1"))
	require.Error(t, ol.GetDeleteLock("vol-1"))

	ol.ReleaseExpandLock("vol-1")
	require.NoError(t, ol.GetDeleteLock("vol-1"))
	ol.ReleaseDeleteLock("vol-1")
}

func TestOperationLockCreateIsReferenceCounted(t *testing.T) {
	ol := NewOperationLock()

	require.NoError(t, ol.GetCreateLock("vol-1"))
	require.NoError(t, ol.GetCreateLock("vol-1"))

	ol.ReleaseCreateLock("vol-1")
	// Still held once more; expand must still see it as in flight.
	require.Error(t, ol.GetExpandLock("vol-1"))

	ol.ReleaseCreateLock("vol-1")
	require.NoError(t, ol.GetExpandLock("vol-1"))
	ol.ReleaseExpandLock("vol-1")
}

func TestOperationLockSnapshotCreateRejectsWhileDeleteInFlight(t *testing.T) {
	ol := NewOperationLock()

	require.NoError(t, ol.GetDeleteLock("vol-1"))
	require.Error(t, ol.GetSnapshotCreateLock("vol-1"))

	ol.ReleaseDeleteLock("vol-1")
	require.NoError(t, ol.GetSnapshotCreateLock("vol-1"))
	ol.ReleaseSnapshotCreateLock("vol-1")
}
