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
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// VolumeOperationAlreadyExistsFmt is returned for a concurrent
	// operation on the same volume id.
	VolumeOperationAlreadyExistsFmt = "an operation with the given volume id %s already exists"

	// SnapshotOperationAlreadyExistsFmt is returned for a concurrent
	// operation on the same snapshot id.
	SnapshotOperationAlreadyExistsFmt = "an operation with the given snapshot id %s already exists"
)

// VolumeLocks is a plain per-id mutual exclusion set. CreateVolume and
// DeleteVolume take it (keyed by name and volume id respectively) in
// addition to their OperationLock; no other RPC uses it.
type VolumeLocks struct {
	locks sets.Set[string]
	mux   sync.Mutex
}

// NewVolumeLocks returns an empty VolumeLocks.
func NewVolumeLocks() *VolumeLocks {
	return &VolumeLocks{locks: sets.New[string]()}
}

// TryAcquire acquires the lock for id, returning false if already held.
func (vl *VolumeLocks) TryAcquire(id string) bool {
	vl.mux.Lock()
	defer vl.mux.Unlock()
	if vl.locks.Has(id) {
		return false
	}
	vl.locks.Insert(id)

	return true
}

// Release releases the lock on id.
func (vl *VolumeLocks) Release(id string) {
	vl.mux.Lock()
	defer vl.mux.Unlock()
	vl.locks.Delete(id)
}

type operation string

const (
	createOp         operation = "create"
	deleteOp         operation = "delete"
	expandOp         operation = "expand"
	snapshotCreateOp operation = "snapshot-create"
	snapshotDeleteOp operation = "snapshot-delete"
)

// OperationLock tracks, per volume or snapshot id, which kinds of
// operation are in flight, and rejects combinations that would race: a
// delete must not run concurrently with an expand on the same id, and
// an expand must not start while a delete (or another create) is still
// running against it. create/snapshot-create/snapshot-delete are
// reference-counted rather than exclusive, since CSI permits the
// orchestrator to retry a create/snapshot RPC in parallel with itself.
type OperationLock struct {
	locks map[operation]map[string]int
	mux   sync.Mutex
}

// NewOperationLock returns an empty OperationLock.
func NewOperationLock() *OperationLock {
	locks := make(map[operation]map[string]int, 5)
	for _, op := range []operation{createOp, deleteOp, expandOp, snapshotCreateOp, snapshotDeleteOp} {
		locks[op] = make(map[string]int)
	}

	return &OperationLock{locks: locks}
}

func (ol *OperationLock) tryAcquire(op operation, id string) error {
	ol.mux.Lock()
	defer ol.mux.Unlock()

	switch op {
	case createOp:
		ol.locks[createOp][id]++
	case deleteOp:
		if _, ok := ol.locks[expandOp][id]; ok {
			return fmt.Errorf("an expand operation with given id %s already exists", id)
		}
		ol.locks[deleteOp][id] = 1
	case expandOp:
		if _, ok := ol.locks[deleteOp][id]; ok {
			return fmt.Errorf("a delete operation with given id %s already exists", id)
		}
		if _, ok := ol.locks[createOp][id]; ok {
			return fmt.Errorf("a create operation with given id %s already exists", id)
		}
		ol.locks[expandOp][id] = 1
	case snapshotCreateOp:
		if _, ok := ol.locks[deleteOp][id]; ok {
			return fmt.Errorf("a delete operation with given id %s already exists", id)
		}
		ol.locks[snapshotCreateOp][id]++
	case snapshotDeleteOp:
		ol.locks[snapshotDeleteOp][id]++
	default:
		return fmt.Errorf("%v operation not supported", op)
	}

	return nil
}

func (ol *OperationLock) release(op operation, id string) {
	ol.mux.Lock()
	defer ol.mux.Unlock()
	if val, ok := ol.locks[op][id]; ok {
		val--
		if val <= 0 {
			delete(ol.locks[op], id)
		} else {
			ol.locks[op][id] = val
		}
	}
}

// GetCreateLock acquires the create lock on volumeID.
func (ol *OperationLock) GetCreateLock(volumeID string) error { return ol.tryAcquire(createOp, volumeID) }

// ReleaseCreateLock releases the create lock on volumeID.
func (ol *OperationLock) ReleaseCreateLock(volumeID string) { ol.release(createOp, volumeID) }

// GetDeleteLock acquires the delete lock on volumeID, failing if an
// expand is in flight.
func (ol *OperationLock) GetDeleteLock(volumeID string) error { return ol.tryAcquire(deleteOp, volumeID) }

// ReleaseDeleteLock releases the delete lock on volumeID.
func (ol *OperationLock) ReleaseDeleteLock(volumeID string) { ol.release(deleteOp, volumeID) }

// GetExpandLock acquires the expand lock on volumeID, failing if a
// delete or create is in flight.
func (ol *OperationLock) GetExpandLock(volumeID string) error { return ol.tryAcquire(expandOp, volumeID) }

// ReleaseExpandLock releases the expand lock on volumeID.
func (ol *OperationLock) ReleaseExpandLock(volumeID string) { ol.release(expandOp, volumeID) }

// GetSnapshotCreateLock acquires the snapshot-create lock on volumeID,
// failing if the source volume is being deleted.
func (ol *OperationLock) GetSnapshotCreateLock(volumeID string) error {
	return ol.tryAcquire(snapshotCreateOp, volumeID)
}

// ReleaseSnapshotCreateLock releases the snapshot-create lock on volumeID.
func (ol *OperationLock) ReleaseSnapshotCreateLock(volumeID string) {
	ol.release(snapshotCreateOp, volumeID)
}

// GetSnapshotDeleteLock acquires the snapshot-delete lock on snapshotID.
func (ol *OperationLock) GetSnapshotDeleteLock(snapshotID string) error {
	return ol.tryAcquire(snapshotDeleteOp, snapshotID)
}

// ReleaseSnapshotDeleteLock releases the snapshot-delete lock on snapshotID.
func (ol *OperationLock) ReleaseSnapshotDeleteLock(snapshotID string) {
	ol.release(snapshotDeleteOp, snapshotID)
}
