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
	"github.com/montaguethomas/vast-csi/internal/csierr"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// notFoundErr builds a NOT_FOUND abort with a formatted message, the
// shape every "no quota/snapshot at this id" branch in this package
// returns.
func notFoundErr(format string, args ...interface{}) error {
	return csierr.NotFound(format, args...)
}

// mapVMSError turns an *ApiError/*HTTPError from the VMS session into
// the dispatcher's UNKNOWN mapping: any VMS transport or validation
// failure the handler didn't specifically anticipate. Domain errors
// already shaped as *csierr.Abort pass through unchanged.
func mapVMSError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := csierr.AsAbort(err); ok {
		return err
	}

	switch e := err.(type) {
	case *vms.ApiError:
		return csierr.Unknown("[%s %s] %s (%d)", e.Method, e.URL, e.Reason, e.StatusCode)
	case *vms.HTTPError:
		return csierr.Unknown("[%s %s] %s (%d)", e.Method, e.URL, e.Reason, e.StatusCode)
	default:
		return csierr.Unknown("%v", err)
	}
}
