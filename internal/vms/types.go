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

import "time"

// Quota is the server-side capacity enforcement object, one-to-one with
// a CSI volume.
type Quota struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	HardLimit int64 `json:"hard_limit"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
}

// View is the NAS export record that makes a path reachable over NFS.
type View struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	Alias    string `json:"alias"`
	TenantID int64  `json:"tenant_id"`
	PolicyID int64  `json:"policy_id"`
}

// ViewPolicy is a named, tenant- and protocol-scoped access policy.
type ViewPolicy struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TenantID int64  `json:"tenant_id"`
}

// VIP is one virtual IP exported by a VIPPool.
type VIP struct {
	IP      string `json:"ip"`
	VIPPool string `json:"vippool"`
	CNode   string `json:"cnode"`
	Title   string `json:"title"`
	TenantID int64 `json:"tenant_id"`
}

// Snapshot is a point-in-time reference to a path.
type Snapshot struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	TenantID      int64     `json:"tenant_id"`
	Created       time.Time `json:"created"`
	SourceVolumeID string   `json:"-"`
}

// Page is the generic paginated envelope the VMS returns for any listing
// endpoint: a page of results plus an opaque "next" URL to follow.
type Page[T any] struct {
	Results []T    `json:"results"`
	Next    string `json:"next"`
	Count   int    `json:"count"`
}

// LoadBalancing selects how GetVIP picks among the VIPs in a pool.
type LoadBalancing string

const (
	// RoundRobin advances a session-scoped index modulo the filtered VIP count.
	RoundRobin LoadBalancing = "roundrobin"
	// Random picks uniformly among the filtered VIPs.
	Random LoadBalancing = "random"
)
