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

package identity

import (
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

func TestGetPluginInfo(t *testing.T) {
	s := New(&config.Config{PluginName: "vast.csi.vastdata.com", PluginVersion: "1.2.3"}, nil)

	resp, err := s.GetPluginInfo(context.Background(), &csi.GetPluginInfoRequest{})
	require.NoError(t, err)
	require.Equal(t, "vast.csi.vastdata.com", resp.GetName())
	require.Equal(t, "1.2.3", resp.GetVendorVersion())

	_, err = New(&config.Config{}, nil).GetPluginInfo(context.Background(), &csi.GetPluginInfoRequest{})
	require.Error(t, err)
}

func TestGetPluginCapabilities(t *testing.T) {
	controllerOnly := New(&config.Config{Mode: config.ModeController}, nil)
	resp, err := controllerOnly.GetPluginCapabilities(context.Background(), &csi.GetPluginCapabilitiesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.GetCapabilities(), 2)

	nodeOnly := New(&config.Config{Mode: config.ModeNode}, nil)
	resp, err = nodeOnly.GetPluginCapabilities(context.Background(), &csi.GetPluginCapabilitiesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.GetCapabilities(), 1)
}

func TestProbe(t *testing.T) {
	nodeServer := New(&config.Config{Mode: config.ModeNode}, nil)
	resp, err := nodeServer.Probe(context.Background(), &csi.ProbeRequest{})
	require.NoError(t, err)
	require.True(t, resp.GetReady().GetValue())

	mocked := New(&config.Config{Mode: config.ModeController, MockVast: true}, nil)
	resp, err = mocked.Probe(context.Background(), &csi.ProbeRequest{})
	require.NoError(t, err)
	require.True(t, resp.GetReady().GetValue())

	session := vms.NewMockSession(t.TempDir(), t.TempDir(), t.TempDir(), "127.0.0.1")
	controllerOnly := New(&config.Config{Mode: config.ModeController, ProbeTimeout: 0}, session)
	resp, err = controllerOnly.Probe(context.Background(), &csi.ProbeRequest{})
	require.NoError(t, err)
	require.True(t, resp.GetReady().GetValue())
}
