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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHTTPSession(t *testing.T, mux *http.ServeMux) (*HTTPSession, *httptest.Server) {
	t.Helper()

	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "fake-token"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewHTTPSession(srv.URL, "user", "pass", true, nil)
	require.NoError(t, s.RefreshAuthToken(context.Background()))

	return s, srv
}

// TestGetQuotaUsesPathContains guards the substring-match lookup the VMS
// management API requires: quotas/?path__contains=<volume_id>, not an
// exact match on a fabricated name field.
func TestGetQuotaUsesPathContains(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quotas/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page[Quota]{
			Results: []Quota{{ID: 1, Path: "/csi-volumes/vol-1", HardLimit: 10, TenantID: 1}},
			Count:   1,
		})
	})
	s, _ := newTestHTTPSession(t, mux)

	q, err := s.GetQuota(context.Background(), "vol-1")
	require.NoError(t, err)
	require.Equal(t, "/csi-volumes/vol-1", q.Path)
	require.Equal(t, "path__contains=vol-1", gotQuery)
}

func TestGetQuotaNotFoundAndTooMany(t *testing.T) {
	mux := http.NewServeMux()
	var results []Quota
	mux.HandleFunc("/api/quotas/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page[Quota]{Results: results, Count: len(results)})
	})
	s, _ := newTestHTTPSession(t, mux)

	_, err := s.GetQuota(context.Background(), "vol-missing")
	require.Equal(t, ErrNotFound, err)

	results = []Quota{{ID: 1, Path: "/a/vol-1"}, {ID: 2, Path: "/b/vol-1-extra"}}
	_, err = s.GetQuota(context.Background(), "vol-1")
	require.Equal(t, ErrTooMany, err)
}

func TestRequestRetriesOnceAfterUnauthorized(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quotas/", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == "Bearer refreshed-token" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Page[Quota]{Results: []Quota{{ID: 1, Path: "/x/vol-1"}}, Count: 1})

			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	tokenCalls := 0
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		tok := "stale-token"
		if tokenCalls > 1 {
			tok = "refreshed-token"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": tok})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s := NewHTTPSession(srv.URL, "user", "pass", true, nil)
	require.NoError(t, s.RefreshAuthToken(context.Background()))

	q, err := s.GetQuota(context.Background(), "vol-1")
	require.NoError(t, err)
	require.Equal(t, "/x/vol-1", q.Path)
	require.Equal(t, 2, calls)
}

func TestDoRawMapsStatusCodesToErrorTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/quotas/400/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/api/quotas/500/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s, _ := newTestHTTPSession(t, mux)

	err := s.request(context.Background(), http.MethodGet, "quotas/400/", nil, nil, nil)
	require.IsType(t, &ApiError{}, err)

	err = s.request(context.Background(), http.MethodGet, "quotas/500/", nil, nil, nil)
	require.IsType(t, &HTTPError{}, err)
}
