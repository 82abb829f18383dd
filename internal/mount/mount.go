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

// Package mount is the driver's thin abstraction over the host's mount
// and umount binaries, shared by the node service (NodePublishVolume)
// and the controller's client-mount data-deletion fallback.
package mount

import (
	"os"
	"strings"

	mountutil "k8s.io/mount-utils"
)

// Shim wraps a k8s.io/mount-utils Interface with the handful of
// operations the driver needs, plus observed-state helpers used for
// idempotence decisions.
type Shim struct {
	mounter mountutil.Interface
}

// New builds a Shim over the host's real mount/umount binaries.
func New() *Shim {
	return &Shim{mounter: mountutil.New("")}
}

// CreateDir makes path (and parents) if they do not already exist.
func (s *Shim) CreateDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// IsMountPoint reports whether path is currently a mount point.
func (s *Shim) IsMountPoint(path string) (bool, error) {
	notMnt, err := s.mounter.IsLikelyNotMountPoint(path)
	if err != nil {
		return false, err
	}

	return !notMnt, nil
}

// Mount mounts source onto target with the given fstype (the driver's
// callers pass "nfs") and options.
func (s *Shim) Mount(source, target, fstype string, options []string) error {
	return s.mounter.MountSensitiveWithoutSystemd(source, target, fstype, options, nil)
}

// Unmount unmounts target. A "not mounted" condition, which the kernel
// reports as ENOENT or EINVAL depending on path state, is reported as a
// distinguishable error via IsNotMountedErr so callers can break their
// retry loop instead of treating it as a failed attempt.
func (s *Shim) Unmount(target string) error {
	return s.mounter.Unmount(target)
}

// IsNotMountedErr reports whether err indicates target was already not
// mounted, the condition NodeUnpublishVolume's retry loop treats as
// success rather than a failed attempt.
func IsNotMountedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	return strings.Contains(msg, "not mounted") || strings.Contains(msg, "not found")
}

// GetMountRefs lists every path bind-mounted to the same device as
// pathname.
func (s *Shim) GetMountRefs(pathname string) ([]string, error) {
	return s.mounter.GetMountRefs(pathname)
}

// DeviceAt returns the device and mount options of the mount currently
// at target, used to decide whether a republish matches what's already
// mounted there.
func (s *Shim) DeviceAt(target string) (device string, opts []string, err error) {
	mounts, err := s.mounter.List()
	if err != nil {
		return "", nil, err
	}
	for _, m := range mounts {
		if m.Path == target {
			return m.Device, m.Opts, nil
		}
	}

	return "", nil, nil
}

// IsCorrupted reports whether err indicates a corrupted (stale) mount.
func IsCorrupted(err error) bool {
	return mountutil.IsCorruptedMnt(err)
}
