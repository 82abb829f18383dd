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
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/montaguethomas/vast-csi/internal/log"

	"github.com/container-storage-interface/spec/lib/go/csi"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/kubernetes-csi/csi-lib-utils/protosanitizer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

func parseEndpoint(ep string) (string, string, error) {
	if strings.HasPrefix(strings.ToLower(ep), "unix://") || strings.HasPrefix(strings.ToLower(ep), "tcp://") {
		s := strings.SplitN(ep, "://", 2)
		if s[1] != "" {
			return s[0], s[1], nil
		}
	}

	return "", "", fmt.Errorf("invalid endpoint: %v", ep)
}

// MiddlewareServerOptionConfig configures the interceptor chain built by
// NewMiddlewareServerOption.
type MiddlewareServerOptionConfig struct {
	LogSlowOpInterval time.Duration
}

// NewMiddlewareServerOption builds the dispatcher: one grpc.ServerOption
// chaining context-id injection, request/response logging, the
// required-field validation table and panic recovery around every RPC,
// in that order.
func NewMiddlewareServerOption(config MiddlewareServerOptionConfig) grpc.ServerOption {
	middleWare := []grpc.UnaryServerInterceptor{
		contextIDInjector,
		logGRPC,
	}

	if config.LogSlowOpInterval > 0 {
		middleWare = append(middleWare, func(
			ctx context.Context,
			req interface{},
			info *grpc.UnaryServerInfo,
			handler grpc.UnaryHandler,
		) (interface{}, error) {
			return logSlowGRPC(
				config.LogSlowOpInterval, ctx, req, info, handler,
			)
		})
	}

	middleWare = append(middleWare, requiredFieldValidator, panicHandler)

	return grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(middleWare...))
}

func getReqID(req interface{}) string {
	// if req is nil empty string will be returned
	reqID := ""
	switch r := req.(type) {
	case *csi.CreateVolumeRequest:
		reqID = r.GetName()
	case *csi.DeleteVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.ControllerPublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.ControllerUnpublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.ValidateVolumeCapabilitiesRequest:
		reqID = r.GetVolumeId()
	case *csi.ControllerExpandVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.CreateSnapshotRequest:
		reqID = r.GetName()
	case *csi.DeleteSnapshotRequest:
		reqID = r.GetSnapshotId()

	case *csi.NodeStageVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodeUnstageVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodePublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodeUnpublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodeExpandVolumeRequest:
		reqID = r.GetVolumeId()
	}

	return reqID
}

var id uint64

func contextIDInjector(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	atomic.AddUint64(&id, 1)
	ctx = context.WithValue(ctx, log.CtxKey, id)
	if reqID := getReqID(req); reqID != "" {
		ctx = context.WithValue(ctx, log.ReqID, reqID)
	}

	return handler(ctx, req)
}

// silencedMethods are logged at Debug instead of Default, matching the
// original source's Instrumented.SILENCED list for its chattiest RPCs.
var silencedMethods = map[string]bool{
	"Probe":               true,
	"NodeGetCapabilities": true,
}

func logGRPC(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	logf := log.DefaultLog
	if silencedMethods[methodName(info.FullMethod)] {
		logf = log.DebugLog
	}

	logf(ctx, "GRPC call: %s", info.FullMethod)
	log.TraceLog(ctx, "GRPC request: %s", protosanitizer.StripSecrets(req))

	resp, err := handler(ctx, req)
	if err != nil {
		klog.Errorf(log.Log(ctx, "GRPC error: %v"), err)
	} else {
		log.TraceLog(ctx, "GRPC response: %s", protosanitizer.StripSecrets(resp))
	}

	return resp, err
}

func requiredFieldValidator(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	if err := checkRequiredFields(info.FullMethod, req); err != nil {
		log.ErrorLog(ctx, "GRPC error: %v", err)

		return nil, err
	}

	return handler(ctx, req)
}

func logSlowGRPC(
	logInterval time.Duration,
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	handlerFinished := make(chan struct{})
	callStartTime := time.Now()

	// Ticks at a logInterval rate and logs a slow-call message until handler finishes.
	// This is called once the handler outlives its context, see below.
	doLogSlowGRPC := func() {
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()

		for {
			select {
			case t := <-ticker.C:
				timePassed := t.Sub(callStartTime).Truncate(time.Second)
				log.ExtendedLog(ctx,
					"Slow GRPC call %s (%s)", info.FullMethod, timePassed)
				log.TraceLog(ctx,
					"Slow GRPC request: %s", protosanitizer.StripSecrets(req))
			case <-handlerFinished:
				return
			}
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			// The call (most likely) outlived its context. Start logging slow messages.
			doLogSlowGRPC()
		case <-handlerFinished:
			// The call finished, exit.
			return
		}
	}()

	resp, err := handler(ctx, req)
	close(handlerFinished)

	return resp, err
}

//nolint:nonamedreturns // named return used to send recovered panic error.
func panicHandler(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("panic occurred: %v", r)
			debug.PrintStack()
			err = status.Errorf(codes.Internal, "panic %v", r)
		}
	}()

	return handler(ctx, req)
}
