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

package node

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"

	"github.com/montaguethomas/vast-csi/internal/config"
)

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, writeSidecar(dir, sidecar{VolumeID: "vol-1", IsEphemeral: true}))

	got, err := readSidecar(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "vol-1", got.VolumeID)
	require.True(t, got.IsEphemeral)

	require.NoError(t, removeSidecar(dir))
	got, err = readSidecar(dir)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEphemeralName(t *testing.T) {
	volCtx := map[string]string{
		"csi.storage.k8s.io/pod.namespace": "default",
		"csi.storage.k8s.io/pod.name":      "my-pod",
		"csi.storage.k8s.io/pod.uid":       "abc-123",
	}

	name := ephemeralName("ephemeral-{namespace}-{name}-{id}", volCtx)
	require.Equal(t, "ephemeral-default-my-pod-abc-123", name)
}

func TestNodeGetInfoAndCapabilities(t *testing.T) {
	cfg := &config.Config{NodeID: "node-1"}
	s := New(cfg, nil)

	info, err := s.NodeGetInfo(context.Background(), &csi.NodeGetInfoRequest{})
	require.NoError(t, err)
	require.Equal(t, "node-1", info.GetNodeId())

	caps, err := s.NodeGetCapabilities(context.Background(), &csi.NodeGetCapabilitiesRequest{})
	require.NoError(t, err)
	require.Empty(t, caps.GetCapabilities())
}

func TestNodeUnpublishVolumeMissingTargetIsIdempotent(t *testing.T) {
	cfg := &config.Config{UnmountAttempts: 3}
	s := New(cfg, nil)

	resp, err := s.NodeUnpublishVolume(context.Background(), &csi.NodeUnpublishVolumeRequest{
		TargetPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
}
