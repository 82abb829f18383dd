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
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montaguethomas/vast-csi/internal/log"
)

// HTTPSession is the production Session backed by the VMS REST API.
// Construct with NewHTTPSession; RefreshAuthToken must be called once
// before any other method is used.
type HTTPSession struct {
	endpoint string
	username string
	password string

	client *http.Client

	mu    sync.RWMutex
	token string

	// rrIndex is advanced with every round-robin GetVIP call. It is
	// session-scoped, not process-global, so two sessions never share
	// rotation state.
	rrIndex uint64

	trashAPIUsable     int32 // -1 unknown+unusable cached no, 0 unknown, 1 usable
	trashAPIUsableOnce sync.Once
}

// NewHTTPSession builds a Session that talks to endpoint over TLS,
// verifying the server certificate against caCert unless verify is
// false. A nil caCert falls back to the system trust store.
func NewHTTPSession(endpoint, username, password string, verify bool, caCert *x509.CertPool) *HTTPSession {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !verify, // #nosec:G402, operator opt-in via -ssl-verify=false
		RootCAs:            caCert,
	}

	return &HTTPSession{
		endpoint: strings.TrimRight(endpoint, "/"),
		username: username,
		password: password,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}
}

// RefreshAuthToken exchanges username/password for a bearer token via the
// VMS's token endpoint. Called once at startup and again whenever a
// request comes back 401.
func (s *HTTPSession) RefreshAuthToken(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": s.username,
		"password": s.password,
	})
	if err != nil {
		return fmt.Errorf("marshaling token request: %w", err)
	}

	resp, err := s.doRaw(ctx, http.MethodPost, "token/", nil, body, false)
	if err != nil {
		return err
	}

	var out struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if out.Access == "" {
		return fmt.Errorf("token response did not contain an access token")
	}

	s.mu.Lock()
	s.token = out.Access
	s.mu.Unlock()

	log.DebugLogMsg("refreshed vms auth token")

	return nil
}

func (s *HTTPSession) authToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// request issues verb against api (a path relative to the VMS API root,
// e.g. "quotas/"), retrying once after a token refresh on 401, and
// decoding a JSON response body into out when out is non-nil.
func (s *HTTPSession) request(ctx context.Context, verb, api string, params url.Values, body interface{}, out interface{}) error {
	var raw []byte
	var err error

	if body != nil {
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	resp, err := s.doRaw(ctx, verb, api, params, raw, true)
	if err != nil {
		var httpErr *HTTPError
		if asHTTPUnauthorized(err) {
			if refreshErr := s.RefreshAuthToken(ctx); refreshErr != nil {
				return fmt.Errorf("refreshing expired token: %w", refreshErr)
			}
			resp, err = s.doRaw(ctx, verb, api, params, raw, true)
		} else if !isApiError(err) && !asHTTPError(err, &httpErr) {
			return err
		}
		if err != nil {
			return err
		}
	}

	if out != nil && len(resp) > 0 {
		if err := json.Unmarshal(resp, out); err != nil {
			return fmt.Errorf("parsing response from %s %s: %w", verb, api, err)
		}
	}

	return nil
}

// doRaw performs the actual HTTP round trip against a full or
// endpoint-relative URL, returning the response body on 2xx and an
// *ApiError (400/503) or *HTTPError (other non-2xx) otherwise.
func (s *HTTPSession) doRaw(ctx context.Context, verb, apiOrURL string, params url.Values, body []byte, authed bool) ([]byte, error) {
	target := apiOrURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = s.endpoint + "/api/" + strings.TrimLeft(apiOrURL, "/")
	}
	if params != nil {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, verb, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request %s %s: %w", verb, target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		if tok := s.authToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", verb, target, err)
	}
	defer resp.Body.Close() // #nosec:G307, body close error is not actionable here

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s %s: %w", verb, target, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &ApiError{Method: verb, URL: target, StatusCode: resp.StatusCode, Reason: resp.Status, Body: respBody}
	}

	return nil, &HTTPError{Method: verb, URL: target, StatusCode: resp.StatusCode, Reason: resp.Status, Body: respBody}
}

func asHTTPUnauthorized(err error) bool {
	var httpErr *HTTPError
	if e, ok := err.(*HTTPError); ok {
		httpErr = e
	}
	var apiErr *ApiError
	if e, ok := err.(*ApiError); ok {
		apiErr = e
	}

	return (httpErr != nil && httpErr.StatusCode == http.StatusUnauthorized) ||
		(apiErr != nil && apiErr.StatusCode == http.StatusUnauthorized)
}

func isApiError(err error) bool {
	_, ok := err.(*ApiError)
	return ok
}

func asHTTPError(err error, target **HTTPError) bool {
	e, ok := err.(*HTTPError)
	if ok {
		*target = e
	}

	return ok
}

// GetVIP returns one address from vipPoolName scoped to tenantID. lb
// selects round-robin (a session-scoped, atomically advanced index) or
// uniform random selection among the filtered VIPs.
func (s *HTTPSession) GetVIP(ctx context.Context, vipPoolName string, lb LoadBalancing, tenantID int64) (string, error) {
	params := url.Values{}
	if vipPoolName != "" {
		params.Set("vippool", vipPoolName)
	}
	if tenantID != 0 {
		params.Set("tenant_id", strconv.FormatInt(tenantID, 10))
	}

	var vips []VIP
	if err := s.request(ctx, http.MethodGet, "vips/", params, nil, &vips); err != nil {
		return "", err
	}
	if len(vips) == 0 {
		return "", &ErrNoVIPs{Pool: vipPoolName}
	}

	var idx int
	switch lb {
	case Random:
		idx = rand.Intn(len(vips)) // #nosec:G404, load balancing choice, not security sensitive
	default:
		n := atomic.AddUint64(&s.rrIndex, 1)
		idx = int(n % uint64(len(vips)))
	}

	return vips[idx].IP, nil
}

// ListQuotas returns the first page of quotas, pageSize per page.
func (s *HTTPSession) ListQuotas(ctx context.Context, pageSize int) (Page[Quota], error) {
	params := url.Values{"page_size": {strconv.Itoa(pageSize)}}
	var page Page[Quota]
	err := s.request(ctx, http.MethodGet, "quotas/", params, nil, &page)

	return page, err
}

// GetQuotasByToken continues a prior ListQuotas/GetQuotasByToken listing.
func (s *HTTPSession) GetQuotasByToken(ctx context.Context, token string) (Page[Quota], error) {
	var page Page[Quota]
	err := s.request(ctx, http.MethodGet, token, nil, nil, &page)

	return page, err
}

// CreateQuota creates a new capacity-enforcement quota at path.
func (s *HTTPSession) CreateQuota(ctx context.Context, path string, hardLimit int64, tenantID int64, name string) (Quota, error) {
	var q Quota
	payload := map[string]interface{}{
		"path":       path,
		"hard_limit": hardLimit,
		"tenant_id":  tenantID,
		"name":       name,
	}
	err := s.request(ctx, http.MethodPost, "quotas/", nil, payload, &q)

	return q, err
}

// GetQuota fetches the quota whose path contains volumeID as a
// substring, the same path__contains lookup the VMS management API
// uses to resolve a volume id to its quota.
func (s *HTTPSession) GetQuota(ctx context.Context, volumeID string) (*Quota, error) {
	params := url.Values{"path__contains": {volumeID}}
	var page Page[Quota]
	if err := s.request(ctx, http.MethodGet, "quotas/", params, nil, &page); err != nil {
		return nil, err
	}
	switch len(page.Results) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &page.Results[0], nil
	default:
		return nil, ErrTooMany
	}
}

// GetQuotasByPath returns every quota rooted at path (normally zero or one).
func (s *HTTPSession) GetQuotasByPath(ctx context.Context, path string) ([]Quota, error) {
	params := url.Values{"path": {path}}
	var page Page[Quota]
	if err := s.request(ctx, http.MethodGet, "quotas/", params, nil, &page); err != nil {
		return nil, err
	}

	return page.Results, nil
}

// UpdateQuotaHardLimit patches the quota's hard_limit, used by
// ControllerExpandVolume. The VMS rejects a decrease below current usage
// with 400, surfaced to the caller as *ApiError.
func (s *HTTPSession) UpdateQuotaHardLimit(ctx context.Context, quotaID int64, hardLimit int64) error {
	api := fmt.Sprintf("quotas/%d/", quotaID)

	return s.request(ctx, http.MethodPatch, api, nil, map[string]int64{"hard_limit": hardLimit}, nil)
}

// DeleteQuota removes the quota record. Does not touch underlying data.
func (s *HTTPSession) DeleteQuota(ctx context.Context, quotaID int64) error {
	api := fmt.Sprintf("quotas/%d/", quotaID)

	return s.request(ctx, http.MethodDelete, api, nil, nil, nil)
}

// ViewPolicyByName looks up a view policy by its administrator-assigned
// name. View policies are never created by the driver.
func (s *HTTPSession) ViewPolicyByName(ctx context.Context, name string) (ViewPolicy, error) {
	params := url.Values{"name": {name}}
	var page Page[ViewPolicy]
	if err := s.request(ctx, http.MethodGet, "viewpolicies/", params, nil, &page); err != nil {
		return ViewPolicy{}, err
	}
	if len(page.Results) == 0 {
		return ViewPolicy{}, fmt.Errorf("view policy %q: %w", name, ErrNotFound)
	}

	return page.Results[0], nil
}

// FindViewByPath returns the view exported at path, or ErrNotFound.
func (s *HTTPSession) FindViewByPath(ctx context.Context, path string) (*View, error) {
	params := url.Values{"path": {path}}
	var page Page[View]
	if err := s.request(ctx, http.MethodGet, "views/", params, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, ErrNotFound
	}

	return &page.Results[0], nil
}

// EnsureView returns the existing view at path if one exists, creating it
// against policyID/tenantID otherwise. Idempotent under concurrent
// CreateVolume retries for the same volume id.
func (s *HTTPSession) EnsureView(ctx context.Context, path string, policyID, tenantID int64) (View, error) {
	existing, err := s.FindViewByPath(ctx, path)
	if err == nil {
		return *existing, nil
	}
	if err != ErrNotFound {
		return View{}, err
	}

	var v View
	payload := map[string]interface{}{
		"path":      path,
		"policy_id": policyID,
		"tenant_id": tenantID,
		"protocols": []string{"NFS"},
	}
	err = s.request(ctx, http.MethodPost, "views/", nil, payload, &v)

	return v, err
}

// CreateTempView creates a short-lived view used only to mount a volume's
// directory for the client-mount deletion fallback. Unlike EnsureView it
// always creates a new view, even if one already exists at path; the
// caller removes it by id with DeleteView when done.
func (s *HTTPSession) CreateTempView(ctx context.Context, path string, policyID, tenantID int64) (View, error) {
	var v View
	payload := map[string]interface{}{
		"path":      path,
		"policy_id": policyID,
		"tenant_id": tenantID,
		"protocols": []string{"NFS"},
	}
	err := s.request(ctx, http.MethodPost, "views/", nil, payload, &v)

	return v, err
}

// DeleteView removes a view record created by CreateTempView.
func (s *HTTPSession) DeleteView(ctx context.Context, viewID int64) error {
	api := fmt.Sprintf("views/%d/", viewID)

	return s.request(ctx, http.MethodDelete, api, nil, nil, nil)
}

// DeleteViewByPath removes the view exported at path, if any.
func (s *HTTPSession) DeleteViewByPath(ctx context.Context, path string) error {
	v, err := s.FindViewByPath(ctx, path)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	return s.DeleteView(ctx, v.ID)
}

// ListSnapshots returns the first page of snapshots, pageSize per page.
func (s *HTTPSession) ListSnapshots(ctx context.Context, pageSize int) (Page[Snapshot], error) {
	params := url.Values{"page_size": {strconv.Itoa(pageSize)}}
	var page Page[Snapshot]
	err := s.request(ctx, http.MethodGet, "snapshots/", params, nil, &page)

	return page, err
}

// GetSnapshotsByToken continues a prior snapshot listing.
func (s *HTTPSession) GetSnapshotsByToken(ctx context.Context, token string) (Page[Snapshot], error) {
	var page Page[Snapshot]
	err := s.request(ctx, http.MethodGet, token, nil, nil, &page)

	return page, err
}

// HasSnapshots reports whether any snapshot is rooted under path. Used to
// tolerate "directory not empty" during deletion when the only remaining
// entries are VMS-internal snapshot references.
func (s *HTTPSession) HasSnapshots(ctx context.Context, path string) (bool, error) {
	params := url.Values{"path": {path}, "page_size": {"1"}}
	var page Page[Snapshot]
	if err := s.request(ctx, http.MethodGet, "snapshots/", params, nil, &page); err != nil {
		return false, err
	}

	return len(page.Results) > 0, nil
}

// EnsureSnapshot returns the existing snapshot named name if one exists,
// creating it against path/tenantID otherwise.
func (s *HTTPSession) EnsureSnapshot(ctx context.Context, name, path string, tenantID int64) (Snapshot, error) {
	existing, err := s.GetSnapshotByName(ctx, name)
	if err == nil {
		return *existing, nil
	}
	if err != ErrNotFound {
		return Snapshot{}, err
	}

	var snap Snapshot
	payload := map[string]interface{}{
		"name":      name,
		"path":      path,
		"tenant_id": tenantID,
	}
	err = s.request(ctx, http.MethodPost, "snapshots/", nil, payload, &snap)

	return snap, err
}

// GetSnapshotByName looks up a snapshot by name, or ErrNotFound.
func (s *HTTPSession) GetSnapshotByName(ctx context.Context, name string) (*Snapshot, error) {
	params := url.Values{"name": {name}}
	var page Page[Snapshot]
	if err := s.request(ctx, http.MethodGet, "snapshots/", params, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, ErrNotFound
	}

	return &page.Results[0], nil
}

// GetSnapshotByID looks up a snapshot by its numeric id, encoded as a
// decimal string in the CSI snapshot_id.
func (s *HTTPSession) GetSnapshotByID(ctx context.Context, id string) (*Snapshot, error) {
	api := fmt.Sprintf("snapshots/%s/", id)
	var snap Snapshot
	if err := s.request(ctx, http.MethodGet, api, nil, nil, &snap); err != nil {
		var httpErr *HTTPError
		if asHTTPError(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return &snap, nil
}

// DeleteSnapshot removes a snapshot by id.
func (s *HTTPSession) DeleteSnapshot(ctx context.Context, id string) error {
	api := fmt.Sprintf("snapshots/%s/", id)

	return s.request(ctx, http.MethodDelete, api, nil, nil, nil)
}

// IsTrashAPIUsable probes the VMS once per session for trash-folder
// support, caching the result. Clusters below the minimum VMS release
// lack the endpoint, in which case the client-mount deletion fallback is
// used for every DeleteVolume call.
func (s *HTTPSession) IsTrashAPIUsable(ctx context.Context) bool {
	s.trashAPIUsableOnce.Do(func() {
		err := s.request(ctx, http.MethodGet, "tenants/trash_path_exists/", nil, nil, nil)
		if err == nil {
			atomic.StoreInt32(&s.trashAPIUsable, 1)
		} else {
			log.WarningLogMsg("trash api probe failed, falling back to client-mount deletion: %v", err)
			atomic.StoreInt32(&s.trashAPIUsable, -1)
		}
	})

	return atomic.LoadInt32(&s.trashAPIUsable) == 1
}

// DeleteFolder asks the VMS to move path to its internal trash area
// rather than the driver mounting the share itself.
func (s *HTTPSession) DeleteFolder(ctx context.Context, path string, tenantID int64) error {
	payload := map[string]interface{}{"path": path, "tenant_id": tenantID}

	return s.request(ctx, http.MethodPost, "tenants/delete_folder/", nil, payload, nil)
}
