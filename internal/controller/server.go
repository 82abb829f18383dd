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

// Package controller implements the CSI Controller service: CreateVolume
// drives the volume builder family, DeleteVolume orchestrates the
// two-strategy data-deletion path, and the remaining RPCs manage
// snapshots, capacity expansion and pagination against the VMS session.
package controller

import (
	"github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/montaguethomas/vast-csi/internal/config"
	csimount "github.com/montaguethomas/vast-csi/internal/mount"
	"github.com/montaguethomas/vast-csi/internal/vms"
)

// Server implements csi.ControllerServer against a VMS Session. It holds
// no per-request state; every field is shared across concurrent RPCs and
// protected internally (the session) or by id (the lock sets).
type Server struct {
	csi.UnimplementedControllerServer

	Config  *config.Config
	Session vms.Session
	Mount   *csimount.Shim

	volumeLocks    *VolumeLocks
	operationLocks *OperationLock
}

// New builds a Controller server over session, using cfg for defaults
// and mode checks.
func New(cfg *config.Config, session vms.Session) *Server {
	return &Server{
		Config:         cfg,
		Session:        session,
		Mount:          csimount.New(),
		volumeLocks:    NewVolumeLocks(),
		operationLocks: NewOperationLock(),
	}
}
