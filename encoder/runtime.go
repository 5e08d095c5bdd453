// Package encoder - ONNX-backed image and caption encoder collaborators.
// The core pipeline depends only on the declared output shapes: (C, H, W)
// for images, (T, C) for captions.
package encoder

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"
)

// Init points the ONNX runtime at its shared library and initializes the
// environment. libPath empty selects a per-platform default under
// third_party/. Call Destroy when all sessions are closed.
func Init(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = sharedLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "initialize onnxruntime from %q", libPath)
	}
	klog.V(1).Infof("onnxruntime initialized from %s", libPath)
	return nil
}

// Destroy tears the ONNX runtime environment down.
func Destroy() error {
	return ort.DestroyEnvironment()
}

func sharedLibPath() string {
	if runtime.GOOS == "windows" {
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime.dll"
		}
	}
	if runtime.GOOS == "darwin" {
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib"
		}
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime_amd64.dylib"
		}
	}
	if runtime.GOOS == "linux" {
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
	panic("Unable to find a version of the onnxruntime library supporting this system.")
}
