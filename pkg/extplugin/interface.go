// Package extplugin is the subprocess RPC contract for "service"-typed
// extensions: native binaries shipped per-platform that the host runs out of
// process via hashicorp/go-plugin instead of evaluating as JS. Adapted from
// the teacher's pkg/plugin/interface.go Extension/ExtensionRPC/
// ExtensionPlugin triad, generalized from a Kubernetes-dashboard-specific
// contract to this runtime's activate/deactivate lifecycle.
package extplugin

import (
	"encoding/json"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// HandshakeConfig pins the magic cookie both host and native extension must
// present before a connection is trusted.
var HandshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PYXIS_EXTENSION_PLUGIN",
	MagicCookieValue: "pyxis-extension-runtime-v1",
}

// Metadata is the static description a native extension reports about
// itself, independent of its JSON manifest on disk.
type Metadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Permissions []string `json:"permissions"`
}

// Extension is the interface every native "service"-type extension binary
// must implement, dispensed over net/rpc by hashicorp/go-plugin.
type Extension interface {
	// Init prepares the extension with its activation context, serialized to
	// JSON since it crosses an RPC boundary (extensionId, extensionPath,
	// version — the subset of ExtensionContext meaningful to an out-of-process
	// extension; system-module/capability access is not available natively).
	Init(contextJSON []byte) error

	// Activate runs the extension's entry point and returns its
	// ExtensionActivation, JSON-encoded.
	Activate() (activationJSON []byte, err error)

	// Deactivate stops extension work; errors are logged, not propagated.
	Deactivate() error

	// GetMetadata returns the extension's self-reported metadata.
	GetMetadata() (Metadata, error)

	// GetHTTPEndpoint returns the host:port the extension listens on for its
	// own HTTP surface, or "" if it exposes none. The host server
	// reverse-proxies this under /api/extensions/<id>/proxy.
	GetHTTPEndpoint() (string, error)
}

// ExtensionRPC is the client-side RPC stub implementing Extension.
type ExtensionRPC struct {
	client *rpc.Client
}

func (e *ExtensionRPC) Init(contextJSON []byte) error {
	var resp any
	return e.client.Call("Plugin.Init", contextJSON, &resp)
}

func (e *ExtensionRPC) Activate() ([]byte, error) {
	var resp []byte
	err := e.client.Call("Plugin.Activate", new(any), &resp)
	return resp, err
}

func (e *ExtensionRPC) Deactivate() error {
	var resp any
	return e.client.Call("Plugin.Deactivate", new(any), &resp)
}

func (e *ExtensionRPC) GetMetadata() (Metadata, error) {
	var resp Metadata
	err := e.client.Call("Plugin.GetMetadata", new(any), &resp)
	return resp, err
}

func (e *ExtensionRPC) GetHTTPEndpoint() (string, error) {
	var resp string
	err := e.client.Call("Plugin.GetHTTPEndpoint", new(any), &resp)
	return resp, err
}

// ExtensionRPCServer is the server-side dispatcher wrapping a concrete
// Extension implementation inside the extension subprocess.
type ExtensionRPCServer struct {
	Impl Extension
}

func (s *ExtensionRPCServer) Init(args []byte, resp *any) error {
	return s.Impl.Init(args)
}

func (s *ExtensionRPCServer) Activate(args any, resp *[]byte) error {
	out, err := s.Impl.Activate()
	*resp = out
	return err
}

func (s *ExtensionRPCServer) Deactivate(args any, resp *any) error {
	return s.Impl.Deactivate()
}

func (s *ExtensionRPCServer) GetMetadata(args any, resp *Metadata) error {
	meta, err := s.Impl.GetMetadata()
	*resp = meta
	return err
}

func (s *ExtensionRPCServer) GetHTTPEndpoint(args any, resp *string) error {
	endpoint, err := s.Impl.GetHTTPEndpoint()
	*resp = endpoint
	return err
}

// ExtensionPlugin is the go-plugin Plugin implementation bridging Impl to
// the RPC triad above.
type ExtensionPlugin struct {
	Impl Extension
}

func (p *ExtensionPlugin) Server(*goplugin.MuxBroker) (any, error) {
	return &ExtensionRPCServer{Impl: p.Impl}, nil
}

func (p *ExtensionPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &ExtensionRPC{client: c}, nil
}

// marshalContext builds the JSON payload Init expects (extensionId,
// extensionPath, version). It is unexported and has no caller outside this
// package; the manager encodes the same shape itself.
func marshalContext(extensionID, extensionPath, version string) ([]byte, error) {
	return json.Marshal(struct {
		ExtensionID   string `json:"extensionId"`
		ExtensionPath string `json:"extensionPath"`
		Version       string `json:"version"`
	}{extensionID, extensionPath, version})
}
