package modloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	hclog "github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/pkg/extplugin"
)

// NativeModule wraps a running "service"-type extension subprocess dispensed
// over hashicorp/go-plugin, mirroring the teacher's own plugin mechanism
// (internal/extension/manager.go's LoadExtensions/loadExtension) but
// generalized from the Kubernetes-dashboard extension contract to this
// runtime's Extension interface.
type NativeModule struct {
	client *goplugin.Client
	ext    extplugin.Extension
}

// BinaryName mirrors the teacher's GOOS/GOARCH-qualified binary naming
// convention for per-platform native extension builds.
func BinaryName(name string) string {
	return fmt.Sprintf("%s-%s-%s", name, runtime.GOOS, runtime.GOARCH)
}

// LoadNative launches the native extension binary for name found under
// binaryDir, preferring the platform-qualified name and falling back to a
// bare name for single-platform builds.
func LoadNative(binaryDir, name string) (*NativeModule, error) {
	var binPath string
	for _, candidate := range []string{BinaryName(name), name} {
		p := filepath.Join(binaryDir, candidate)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			binPath = p
			break
		}
	}
	if binPath == "" {
		return nil, fmt.Errorf("modloader: no native binary found for %s under %s", name, binaryDir)
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: extplugin.HandshakeConfig,
		Plugins: map[string]goplugin.Plugin{
			"extension": &extplugin.ExtensionPlugin{},
		},
		Cmd:              exec.Command(binPath),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           hclog.NewNullLogger(),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("modloader: connect to native extension %s: %w", name, err)
	}

	raw, err := rpcClient.Dispense("extension")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("modloader: dispense native extension %s: %w", name, err)
	}

	ext, ok := raw.(extplugin.Extension)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("modloader: native extension %s does not implement the Extension interface", name)
	}

	return &NativeModule{client: client, ext: ext}, nil
}

// Extension exposes the underlying RPC-backed Extension handle.
func (n *NativeModule) Extension() extplugin.Extension {
	return n.ext
}

// Close terminates the extension subprocess.
func (n *NativeModule) Close() {
	n.client.Kill()
}
