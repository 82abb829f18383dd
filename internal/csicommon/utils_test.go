/*
Copyright 2019 ceph-csi authors.

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

package csicommon

import (
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var fakeID = "fake-id"

func TestGetReqID(t *testing.T) {
	t.Parallel()
	req := []interface{}{
		&csi.CreateVolumeRequest{Name: fakeID},
		&csi.DeleteVolumeRequest{VolumeId: fakeID},
		&csi.ControllerPublishVolumeRequest{VolumeId: fakeID},
		&csi.ControllerUnpublishVolumeRequest{VolumeId: fakeID},
		&csi.ValidateVolumeCapabilitiesRequest{VolumeId: fakeID},
		&csi.ControllerExpandVolumeRequest{VolumeId: fakeID},
		&csi.CreateSnapshotRequest{Name: fakeID},
		&csi.DeleteSnapshotRequest{SnapshotId: fakeID},
		&csi.NodeStageVolumeRequest{VolumeId: fakeID},
		&csi.NodeUnstageVolumeRequest{VolumeId: fakeID},
		&csi.NodePublishVolumeRequest{VolumeId: fakeID},
		&csi.NodeUnpublishVolumeRequest{VolumeId: fakeID},
		&csi.NodeExpandVolumeRequest{VolumeId: fakeID},
	}
	for _, r := range req {
		assert.Equal(t, fakeID, getReqID(r))
	}

	assert.Empty(t, getReqID(nil))
}

func TestMethodName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CreateVolume", methodName("/csi.v1.Controller/CreateVolume"))
	assert.Equal(t, "noprefix", methodName("noprefix"))
}

func TestCheckRequiredFields(t *testing.T) {
	t.Parallel()

	err := checkRequiredFields("/csi.v1.Controller/CreateVolume", &csi.CreateVolumeRequest{
		Name: "vol-1",
	})
	require := status.Code(err)
	assert.Equal(t, codes.InvalidArgument, require)

	err = checkRequiredFields("/csi.v1.Controller/CreateVolume", &csi.CreateVolumeRequest{
		Name:               "vol-1",
		VolumeCapabilities: []*csi.VolumeCapability{{}},
	})
	assert.NoError(t, err)

	// methods absent from the table, or mapped to nil, are never checked
	err = checkRequiredFields("/csi.v1.Identity/Probe", &csi.ProbeRequest{})
	assert.NoError(t, err)
}
