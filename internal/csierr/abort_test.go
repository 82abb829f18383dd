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

package csierr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestAbortReachesWireAsItsOwnCode guards against Abort regressing back
// into an opaque error: status.FromError (what every grpc-go server
// handler path calls before writing the response) only honors a
// GRPCStatus() method, otherwise it coerces to codes.Unknown.
func TestAbortReachesWireAsItsOwnCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"not-found", NotFound("volume %q not found", "vol-1"), codes.NotFound},
		{"aborted", Aborted("concurrent deletion detected for %s", "/vol-1"), codes.Aborted},
		{"out-of-range", OutOfRange("requested size %d exceeds limit", 10), codes.OutOfRange},
		{"invalid-argument", InvalidArgument("name is required"), codes.InvalidArgument},
		{"unknown", Unknown("unexpected VMS response: %v", "boom"), codes.Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, ok := status.FromError(tc.err)
			require.True(t, ok, "error must carry a real gRPC status, not be coerced to Unknown")
			require.Equal(t, tc.code, st.Code())
		})
	}
}

func TestAsAbort(t *testing.T) {
	err := NotFound("volume %q not found", "vol-1")

	a, ok := AsAbort(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, a.Code)

	_, ok = AsAbort(status.Error(codes.Internal, "not an abort"))
	require.False(t, ok)
}
