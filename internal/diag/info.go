package diag

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-sqlite3"
)

// Environment describes the optional components reported by Info.
type Environment struct {
	DataDir    string
	MQTTBroker string
	// GPUErr is nil when NVML initialized.
	GPUErr error
}

type Component struct {
	Name   string
	OK     bool
	Detail string
}

type Info struct {
	GoVersion  string
	Platform   string
	WorkingDir string
	Executable string
	Components []Component
}

func CollectInfo(env Environment) Info {
	info := Info{
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info.WorkingDir, _ = os.Getwd()
	info.Executable, _ = os.Executable()

	gpuStatus := Component{Name: "nvml", OK: env.GPUErr == nil, Detail: "available"}
	if env.GPUErr != nil {
		gpuStatus.Detail = env.GPUErr.Error()
	}

	version, _, _ := sqlite3.Version()
	mqtt := Component{Name: "mqtt", OK: env.MQTTBroker != "", Detail: env.MQTTBroker}
	if env.MQTTBroker == "" {
		mqtt.Detail = "no broker configured"
	}

	dataDir := Component{Name: "data directory", Detail: env.DataDir}
	if fi, err := os.Stat(env.DataDir); err == nil && fi.IsDir() {
		dataDir.OK = true
	} else {
		dataDir.Detail = env.DataDir + " (missing)"
	}

	info.Components = []Component{
		gpuStatus,
		{Name: "sqlite", OK: true, Detail: "sqlite " + version},
		mqtt,
		dataDir,
	}
	return info
}

func (i Info) Print(w io.Writer) {
	fmt.Fprintln(w, "System Information:")
	fmt.Fprintf(w, "   Go: %s\n", i.GoVersion)
	fmt.Fprintf(w, "   Platform: %s\n", i.Platform)
	fmt.Fprintf(w, "   Working Directory: %s\n", i.WorkingDir)
	fmt.Fprintf(w, "   Executable: %s\n", i.Executable)
	fmt.Fprintln(w, "Component Status:")
	for _, c := range i.Components {
		mark := "✅"
		if !c.OK {
			mark = "❌"
		}
		fmt.Fprintf(w, "   %s %s: %s\n", mark, c.Name, c.Detail)
	}
}
