/*
Copyright 2017 The Kubernetes Authors.

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
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// requiredFields is the validation table the dispatcher walks before
// invoking a handler: the set of proto fields that must be populated
// for the RPC to make sense. A method absent from this map, or mapped
// to nil, carries no required-field check.
//
// This re-expresses the Python source's Instrumented.logged decorator,
// which derived "required" from a handler function's parameters that
// carried no default value. Go has no equivalent to inspect.signature,
// so the table is authored by hand once instead of derived per call.
var requiredFields = map[string][]string{
	"CreateVolume":               {"name", "volume_capabilities"},
	"DeleteVolume":               {"volume_id"},
	"ControllerPublishVolume":    {"volume_id", "node_id", "volume_capability"},
	"ControllerUnpublishVolume":  {"volume_id"},
	"ValidateVolumeCapabilities": {"volume_id", "volume_capabilities"},
	"ControllerExpandVolume":     {"volume_id", "capacity_range"},
	"CreateSnapshot":             {"source_volume_id", "name"},
	"DeleteSnapshot":             {"snapshot_id"},
	"ListSnapshots":              nil,
	"ListVolumes":                nil,
	"NodePublishVolume":          {"volume_id", "target_path"},
	"NodeUnpublishVolume":        {"volume_id", "target_path"},
	"NodeGetInfo":                nil,
	"NodeGetCapabilities":        nil,
	"ControllerGetCapabilities":  nil,
	"GetPluginInfo":              nil,
	"GetPluginCapabilities":      nil,
	"Probe":                      nil,
}

// methodName extracts "CreateVolume" out of "/csi.v1.Controller/CreateVolume".
func methodName(fullMethod string) string {
	i := strings.LastIndex(fullMethod, "/")
	if i < 0 {
		return fullMethod
	}

	return fullMethod[i+1:]
}

// checkRequiredFields reports an InvalidArgument status listing every
// field the table requires that the incoming message left at its zero
// value. Proto3 implicit presence means Has reports false for an unset
// scalar exactly as it does for an unset message field, so one check
// covers both.
func checkRequiredFields(fullMethod string, req interface{}) error {
	names, ok := requiredFields[methodName(fullMethod)]
	if !ok || len(names) == 0 {
		return nil
	}

	msg, ok := req.(proto.Message)
	if !ok {
		return nil
	}

	refl := msg.ProtoReflect()
	fields := refl.Descriptor().Fields()

	var missing []string
	for _, name := range names {
		fd := fields.ByName(protoreflect.Name(name))
		if fd == nil || !refl.Has(fd) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	return status.Errorf(codes.InvalidArgument, "missing required fields: %s", strings.Join(missing, ", "))
}
