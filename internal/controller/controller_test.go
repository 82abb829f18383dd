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
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		MockVast:            true,
		SanityTestNFSExport: t.TempDir(),
		NameFmt:             "{namespace}-{name}-{id}",
	}
	session := vms.NewMockSession(t.TempDir(), t.TempDir(), cfg.SanityTestNFSExport, "127.0.0.1")

	return New(cfg, session)
}

func mountCapability() *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessType: &csi.VolumeCapability_Mount{Mount: &csi.VolumeCapability_MountVolume{}},
		AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER},
	}
}

func TestCreateDeleteVolumeRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResp, err := s.CreateVolume(ctx, &csi.CreateVolumeRequest{
		Name:               "pvc-1",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
		CapacityRange:      &csi.CapacityRange{RequiredBytes: 1 << 30},
	})
	require.NoError(t, err)
	require.NotEmpty(t, createResp.GetVolume().GetVolumeId())

	volumeID := createResp.GetVolume().GetVolumeId()

	_, err = s.DeleteVolume(ctx, &csi.DeleteVolumeRequest{VolumeId: volumeID})
	require.NoError(t, err)

	// Deleting again is idempotent: the quota is already gone.
	_, err = s.DeleteVolume(ctx, &csi.DeleteVolumeRequest{VolumeId: volumeID})
	require.NoError(t, err)
}

func TestDeleteVolumeOnUnprovisionedIDIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	// Nothing in this package ever called CreateVolume for this id; the
	// mock session must still resolve a synthetic quota rather than
	// failing NOT_FOUND (SPEC_FULL.md §13's mock quota lookup decision).
	_, err := s.DeleteVolume(context.Background(), &csi.DeleteVolumeRequest{VolumeId: "never-created"})
	require.NoError(t, err)
}

func TestDeleteVolumeRequiresVolumeID(t *testing.T) {
	s := newTestServer(t)

	_, err := s.DeleteVolume(context.Background(), &csi.DeleteVolumeRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateVolumeRequiresName(t *testing.T) {
	s := newTestServer(t)

	_, err := s.CreateVolume(context.Background(), &csi.CreateVolumeRequest{
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestValidateVolumeCapabilities(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResp, err := s.CreateVolume(ctx, &csi.CreateVolumeRequest{
		Name:               "pvc-2",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.NoError(t, err)
	volumeID := createResp.GetVolume().GetVolumeId()

	resp, err := s.ValidateVolumeCapabilities(ctx, &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           volumeID,
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.GetConfirmed())
	require.Empty(t, resp.GetMessage())

	unsupported := &csi.VolumeCapability{
		AccessType: &csi.VolumeCapability_Mount{Mount: &csi.VolumeCapability_MountVolume{}},
		AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_MULTI_NODE_READER_ONLY},
	}
	resp, err = s.ValidateVolumeCapabilities(ctx, &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           volumeID,
		VolumeCapabilities: []*csi.VolumeCapability{unsupported},
	})
	require.NoError(t, err)
	require.Nil(t, resp.GetConfirmed())
	require.NotEmpty(t, resp.GetMessage())

	// The mock session resolves a synthetic quota for any volume id
	// (SPEC_FULL.md §13), so an unprovisioned id is confirmed rather
	// than reported NOT_FOUND.
	resp, err = s.ValidateVolumeCapabilities(ctx, &csi.ValidateVolumeCapabilitiesRequest{
		VolumeId:           "no-such-volume",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.GetConfirmed())
}

func TestControllerExpandVolume(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	createResp, err := s.CreateVolume(ctx, &csi.CreateVolumeRequest{
		Name:               "pvc-3",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
		CapacityRange:      &csi.CapacityRange{RequiredBytes: 1 << 30},
	})
	require.NoError(t, err)
	volumeID := createResp.GetVolume().GetVolumeId()

	// Shrinking is a no-op; the driver never lowers a quota.
	resp, err := s.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      volumeID,
		CapacityRange: &csi.CapacityRange{RequiredBytes: 1 << 20},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1<<30, resp.GetCapacityBytes())
	require.False(t, resp.GetNodeExpansionRequired())

	resp, err = s.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      volumeID,
		CapacityRange: &csi.CapacityRange{RequiredBytes: 2 << 30},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2<<30, resp.GetCapacityBytes())
}

func TestControllerGetCapabilities(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.ControllerGetCapabilities(context.Background(), &csi.ControllerGetCapabilitiesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.GetCapabilities(), len(controllerCapabilities))
}

func TestListVolumes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.CreateVolume(ctx, &csi.CreateVolumeRequest{
		Name:               "pvc-4",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.NoError(t, err)

	resp, err := s.ListVolumes(ctx, &csi.ListVolumesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.GetEntries(), 1)

	_, err = s.ListVolumes(ctx, &csi.ListVolumesRequest{StartingToken: "invalid-token"})
	require.Equal(t, codes.Aborted, status.Code(err))
}

func TestConcurrentCreateVolumeIsRejected(t *testing.T) {
	s := newTestServer(t)
	require.True(t, s.volumeLocks.TryAcquire("pvc-5"))

	_, err := s.CreateVolume(context.Background(), &csi.CreateVolumeRequest{
		Name:               "pvc-5",
		VolumeCapabilities: []*csi.VolumeCapability{mountCapability()},
	})
	require.Equal(t, codes.Aborted, status.Code(err))

	s.volumeLocks.Release("pvc-5")
}
