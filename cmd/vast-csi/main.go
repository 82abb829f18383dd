/*
Copyright 2019 The Ceph-CSI Authors.

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

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"k8s.io/klog/v2"

	"github.com/montaguethomas/vast-csi/internal/config"
	"github.com/montaguethomas/vast-csi/internal/driver"
)

var (
	cfg     config.Config
	version bool
)

func init() {
	config.RegisterFlags(flag.CommandLine, &cfg)
	flag.BoolVar(&version, "version", false, "print driver version information and exit")

	klog.InitFlags(nil)
	if err := flag.Set("logtostderr", "true"); err != nil {
		klog.Exitf("failed to set logtostderr flag: %v", err)
	}
	flag.Parse()
}

func main() {
	if version {
		fmt.Println("Driver version:", cfg.PluginVersion)
		fmt.Println("Git commit:", cfg.GitCommit)
		fmt.Println("Go version:", runtime.Version())
		fmt.Println("Compiler:", runtime.Compiler)
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if err := config.LoadSecrets(&cfg, cfg.VMSSecretFile); err != nil {
		klog.Fatalf("failed to load VMS credentials: %v", err)
	}
	if err := config.LoadCACert(&cfg); err != nil {
		klog.Fatalf("failed to load VMS CA certificate: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}

	klog.V(1).Infof("Starting %s (version %s, git %s) in mode %q", cfg.PluginName, cfg.PluginVersion, cfg.GitCommit, cfg.Mode)

	d := driver.NewDriver()
	d.Run(&cfg)

	os.Exit(0)
}
