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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// MockSession is a Session implementation backed entirely by the local
// filesystem: one JSON file per quota under quotaDir, one per snapshot
// under snapshotDir. It exists so sanity and controller tests can run
// without a real VMS appliance, and so a single-node developer setup can
// exercise the whole CSI surface against a loopback NFS export.
//
// Divergence from production is deliberate and narrow: quotas here carry
// no real capacity enforcement (hard_limit is stored but never checked
// against on-disk usage), and GetVIP always returns the configured
// fakeServer regardless of pool name or load balancing. Both are
// documented as acceptable for a mock whose job is to exercise control
// flow, not storage capacity accounting.
type MockSession struct {
	mu sync.Mutex

	quotaDir    string
	snapshotDir string
	exportRoot  string
	fakeServer  string
	nextID      int64
}

// NewMockSession builds a MockSession storing quota/snapshot records
// under quotaDir/snapshotDir, synthesizing an unrecorded quota's path
// under exportRoot (see GetQuota), and reporting fakeServer as the only
// NFS server address.
func NewMockSession(quotaDir, snapshotDir, exportRoot, fakeServer string) *MockSession {
	return &MockSession{
		quotaDir:    quotaDir,
		snapshotDir: snapshotDir,
		exportRoot:  exportRoot,
		fakeServer:  fakeServer,
		nextID:      1,
	}
}

// RefreshAuthToken is a no-op: the mock has no auth layer.
func (m *MockSession) RefreshAuthToken(ctx context.Context) error { return nil }

// GetVIP always returns the configured fake server address.
func (m *MockSession) GetVIP(ctx context.Context, vipPoolName string, lb LoadBalancing, tenantID int64) (string, error) {
	if m.fakeServer == "" {
		return "", &ErrNoVIPs{Pool: vipPoolName}
	}

	return m.fakeServer, nil
}

func (m *MockSession) quotaPath(name string) string {
	return filepath.Join(m.quotaDir, name+".json")
}

func (m *MockSession) snapshotPath(name string) string {
	return filepath.Join(m.snapshotDir, name+".json")
}

func (m *MockSession) allocID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++

	return id
}

func loadJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path) // #nosec:G304, fake store root is operator-supplied via flag
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	return &v, nil
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func listJSON[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]T, 0, len(names))
	for _, name := range names {
		v, err := loadJSON[T](filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}

	return out, nil
}

// ListQuotas returns every fake quota; MockSession never truncates to
// pageSize since tests run against a handful of volumes at most.
func (m *MockSession) ListQuotas(ctx context.Context, pageSize int) (Page[Quota], error) {
	quotas, err := listJSON[Quota](m.quotaDir)
	if err != nil {
		return Page[Quota]{}, err
	}

	return Page[Quota]{Results: quotas, Count: len(quotas)}, nil
}

// GetQuotasByToken has nothing to page through in the mock; it returns
// an empty page.
func (m *MockSession) GetQuotasByToken(ctx context.Context, token string) (Page[Quota], error) {
	return Page[Quota]{}, nil
}

// CreateQuota writes a new fake quota file named by its volume name.
func (m *MockSession) CreateQuota(ctx context.Context, path string, hardLimit int64, tenantID int64, name string) (Quota, error) {
	q := Quota{ID: m.allocID(), Path: path, HardLimit: hardLimit, TenantID: tenantID, Name: name}
	if err := saveJSON(m.quotaPath(name), q); err != nil {
		return Quota{}, err
	}

	return q, nil
}

// GetQuota reads the fake quota file for volumeID if CreateQuota wrote
// one, or else synthesizes a Quota rooted at exportRoot/volumeID. The
// mock deliberately never reports ErrNotFound here, mirroring the
// original source's synthetic FakeQuota: DeleteVolume/ExpandVolume on a
// volume id the mock never actually provisioned a quota file for (e.g.
// a sanity-test fixture, or a retried Delete after the file is already
// gone) must still resolve to a path, not fail closed.
func (m *MockSession) GetQuota(ctx context.Context, volumeID string) (*Quota, error) {
	q, err := loadJSON[Quota](m.quotaPath(volumeID))
	if err == ErrNotFound {
		return &Quota{Path: filepath.Join(m.exportRoot, volumeID), Name: volumeID}, nil
	}

	return q, err
}

// GetQuotasByPath scans every fake quota for a matching path.
func (m *MockSession) GetQuotasByPath(ctx context.Context, path string) ([]Quota, error) {
	all, err := listJSON[Quota](m.quotaDir)
	if err != nil {
		return nil, err
	}
	var out []Quota
	for _, q := range all {
		if q.Path == path {
			out = append(out, q)
		}
	}

	return out, nil
}

// UpdateQuotaHardLimit rewrites the matching fake quota file's hard_limit.
func (m *MockSession) UpdateQuotaHardLimit(ctx context.Context, quotaID int64, hardLimit int64) error {
	all, err := listJSON[Quota](m.quotaDir)
	if err != nil {
		return err
	}
	for _, q := range all {
		if q.ID == quotaID {
			q.HardLimit = hardLimit

			return saveJSON(m.quotaPath(q.Name), q)
		}
	}

	return ErrNotFound
}

// DeleteQuota removes the fake quota file matching quotaID. A quotaID of
// zero (GetQuota's synthetic fallback, see above) or one with no
// backing file is treated as already deleted, not an error.
func (m *MockSession) DeleteQuota(ctx context.Context, quotaID int64) error {
	if quotaID == 0 {
		return nil
	}

	all, err := listJSON[Quota](m.quotaDir)
	if err != nil {
		return err
	}
	for _, q := range all {
		if q.ID == quotaID {
			return os.Remove(m.quotaPath(q.Name))
		}
	}

	return nil
}

// ViewPolicyByName returns a synthetic policy; the mock never models
// view policy administration.
func (m *MockSession) ViewPolicyByName(ctx context.Context, name string) (ViewPolicy, error) {
	return ViewPolicy{ID: 1, Name: name}, nil
}

// FindViewByPath is a no-op success in the mock: views are not modeled
// as separate objects, only as a side effect of the fake NFS export
// already existing at SanityTestNFSExport.
func (m *MockSession) FindViewByPath(ctx context.Context, path string) (*View, error) {
	return &View{ID: 1, Path: path}, nil
}

// EnsureView always succeeds without creating anything.
func (m *MockSession) EnsureView(ctx context.Context, path string, policyID, tenantID int64) (View, error) {
	return View{ID: 1, Path: path, PolicyID: policyID, TenantID: tenantID}, nil
}

// CreateTempView always succeeds without creating anything.
func (m *MockSession) CreateTempView(ctx context.Context, path string, policyID, tenantID int64) (View, error) {
	return View{ID: 1, Path: path, PolicyID: policyID, TenantID: tenantID}, nil
}

// DeleteView is a no-op in the mock.
func (m *MockSession) DeleteView(ctx context.Context, viewID int64) error { return nil }

// DeleteViewByPath is a no-op in the mock.
func (m *MockSession) DeleteViewByPath(ctx context.Context, path string) error { return nil }

// ListSnapshots returns every fake snapshot.
func (m *MockSession) ListSnapshots(ctx context.Context, pageSize int) (Page[Snapshot], error) {
	snaps, err := listJSON[Snapshot](m.snapshotDir)
	if err != nil {
		return Page[Snapshot]{}, err
	}

	return Page[Snapshot]{Results: snaps, Count: len(snaps)}, nil
}

// GetSnapshotsByToken has nothing to page through in the mock.
func (m *MockSession) GetSnapshotsByToken(ctx context.Context, token string) (Page[Snapshot], error) {
	return Page[Snapshot]{}, nil
}

// HasSnapshots scans fake snapshots for one whose path equals path.
func (m *MockSession) HasSnapshots(ctx context.Context, path string) (bool, error) {
	all, err := listJSON[Snapshot](m.snapshotDir)
	if err != nil {
		return false, err
	}
	for _, snap := range all {
		if snap.Path == path {
			return true, nil
		}
	}

	return false, nil
}

// EnsureSnapshot returns the existing fake snapshot for name, creating it
// if absent.
func (m *MockSession) EnsureSnapshot(ctx context.Context, name, path string, tenantID int64) (Snapshot, error) {
	existing, err := m.GetSnapshotByName(ctx, name)
	if err == nil {
		return *existing, nil
	}
	if err != ErrNotFound {
		return Snapshot{}, err
	}

	snap := Snapshot{ID: m.allocID(), Name: name, Path: path, TenantID: tenantID}
	if err := saveJSON(m.snapshotPath(name), snap); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

// GetSnapshotByName reads the fake snapshot file named name.
func (m *MockSession) GetSnapshotByName(ctx context.Context, name string) (*Snapshot, error) {
	return loadJSON[Snapshot](m.snapshotPath(name))
}

// GetSnapshotByID scans fake snapshots for a matching numeric id.
func (m *MockSession) GetSnapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	wantID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot id %q: %w", id, err)
	}
	all, err := listJSON[Snapshot](m.snapshotDir)
	if err != nil {
		return nil, err
	}
	for _, snap := range all {
		if snap.ID == wantID {
			return &snap, nil
		}
	}

	return nil, ErrNotFound
}

// DeleteSnapshot removes the fake snapshot file matching id.
func (m *MockSession) DeleteSnapshot(ctx context.Context, id string) error {
	snap, err := m.GetSnapshotByID(ctx, id)
	if err != nil {
		return err
	}

	return os.Remove(m.snapshotPath(snap.Name))
}

// IsTrashAPIUsable always reports true, so data deletion against the mock
// goes through DeleteFolder and never mounts anything.
func (m *MockSession) IsTrashAPIUsable(ctx context.Context) bool { return true }

// DeleteFolder removes the local directory for path's leaf under
// exportRoot, the same place the Test builder creates it. A missing
// directory is not an error.
func (m *MockSession) DeleteFolder(ctx context.Context, path string, tenantID int64) error {
	leaf := filepath.Base(path)
	if leaf == "." || leaf == string(filepath.Separator) {
		return nil
	}

	return os.RemoveAll(filepath.Join(m.exportRoot, leaf))
}

var _ Session = (*MockSession)(nil)
var _ Session = (*HTTPSession)(nil)
