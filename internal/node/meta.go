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
	"encoding/json"
	"os"
	"path/filepath"
)

// sidecarName is the per-target metadata file written at publish time so
// unpublish can recover whether the volume was ephemeral after a node
// restart, without re-deriving it from volume_context (which unpublish
// is not given).
const sidecarName = ".vast-csi-meta"

// sidecar is the JSON shape of the per-target metadata file.
type sidecar struct {
	VolumeID    string `json:"volume_id"`
	IsEphemeral bool   `json:"is_ephemeral"`
}

func sidecarPath(targetPath string) string {
	return filepath.Join(targetPath, sidecarName)
}

func writeSidecar(targetPath string, s sidecar) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(sidecarPath(targetPath), data, 0o600)
}

func readSidecar(targetPath string) (*sidecar, error) {
	data, err := os.ReadFile(sidecarPath(targetPath)) // #nosec:G304, target path is orchestrator-supplied
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

func removeSidecar(targetPath string) error {
	err := os.Remove(sidecarPath(targetPath))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
