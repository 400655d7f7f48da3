// SPDX-License-Identifier: MPL-2.0

package command

// AdapterOptions is a tagged union selecting which adapter executes a
// Command and carrying that adapter's variant-specific configuration.
// Implementations are value types; Kind identifies the variant for
// dispatch without a type switch at every call site.
type AdapterOptions interface {
	Kind() AdapterKind
}

// AdapterKind names one of the adapter variants a Command can target.
type AdapterKind string

const (
	AdapterLocal        AdapterKind = "local"
	AdapterSSH          AdapterKind = "ssh"
	AdapterDocker       AdapterKind = "docker"
	AdapterRemoteDocker AdapterKind = "remote-docker"
	AdapterKubernetes   AdapterKind = "kubernetes"
	AdapterMock         AdapterKind = "mock"
)

// LocalOptions targets the local host. It carries no fields; its
// presence alone selects the local adapter.
type LocalOptions struct{}

func (LocalOptions) Kind() AdapterKind { return AdapterLocal }

// SSHAuthMethod selects how the SSH adapter authenticates.
type SSHAuthMethod string

const (
	SSHAuthKey      SSHAuthMethod = "key"
	SSHAuthPassword SSHAuthMethod = "password"
	SSHAuthAgent    SSHAuthMethod = "agent"
)

// SSHSudoMethod selects how a command escalates privilege once
// connected.
type SSHSudoMethod string

const (
	SSHSudoAskpass SSHSudoMethod = "askpass"
	SSHSudoStdin   SSHSudoMethod = "stdin"
)

// SSHSudo configures privilege escalation for a single command. The
// password is never written to event streams even with masking
// disabled.
type SSHSudo struct {
	Password string
	Method   SSHSudoMethod
}

// SSHOptions targets a remote host over SSH. Host/User/Port/Auth
// identify the pooled connection (see internal/adapter/sshadapter);
// the remaining fields configure one command on that connection.
type SSHOptions struct {
	Host             string
	User             string
	Port             int
	Auth             SSHAuthMethod
	KeyPath          string
	Password         string
	ReadyTimeoutMs   int
	KeepAliveMs      int
	KeepAliveMaxFail int
	Multiplex        bool
	Sudo             *SSHSudo
}

func (SSHOptions) Kind() AdapterKind { return AdapterSSH }

// DockerRunMode selects between attaching to an existing container
// (exec) and creating an ephemeral one (run).
type DockerRunMode string

const (
	DockerRunModeAuto DockerRunMode = "auto"
	DockerRunModeExec DockerRunMode = "exec"
	DockerRunModeRun  DockerRunMode = "run"
)

// DockerOptions targets a Docker (or Podman) container. Container
// selects exec mode; Image selects run mode; RunMode overrides the
// auto-detection described in the component design.
type DockerOptions struct {
	Container  string
	Image      string
	Workdir    string
	User       string
	TTY        bool
	AutoRemove bool
	RunMode    DockerRunMode
	Volumes    []string
	Env        map[string]string
	Ports      []string
	Network    string
}

func (DockerOptions) Kind() AdapterKind { return AdapterDocker }

// RemoteDockerOptions composes an SSH hop with Docker options: the
// adapter opens (or reuses) the SSH connection named by SSH and issues
// the Docker argv described by Docker over that channel.
type RemoteDockerOptions struct {
	SSH    SSHOptions
	Docker DockerOptions
}

func (RemoteDockerOptions) Kind() AdapterKind { return AdapterRemoteDocker }

// K8sOptions targets a pod (or pod selector) in a Kubernetes cluster,
// driven through the kubectl CLI.
type K8sOptions struct {
	Pod       string // literal name, "-l key=value" selector, or regex
	Namespace string
	Container string
	Context   string
	Kubeconfig string
	TTY       bool
	Stdin     bool
	ExecFlags []string
}

func (K8sOptions) Kind() AdapterKind { return AdapterKubernetes }

// MockOptions targets the in-memory mock adapter used by tests.
type MockOptions struct {
	// Name optionally identifies which scripted response to return,
	// letting a single mock adapter serve several expected commands.
	Name string
}

func (MockOptions) Kind() AdapterKind { return AdapterMock }
