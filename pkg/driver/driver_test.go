package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and replays scripted responses keyed by
// the full command line.
type fakeRunner struct {
	missing   map[string]bool
	responses map[string]fakeResp
	calls     []string
}

type fakeResp struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{missing: map[string]bool{}, responses: map[string]fakeResp{}}
}

func (f *fakeRunner) script(cmdline, out string, err error) {
	f.responses[cmdline] = fakeResp{out: out, err: err}
}

func (f *fakeRunner) Look(binary string) error {
	if f.missing[binary] {
		return fmt.Errorf("%s binary not found in PATH", binary)
	}
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmdline)
	resp, ok := f.responses[cmdline]
	if !ok {
		return "", nil
	}
	return resp.out, resp.err
}

func (f *fakeRunner) RunStreaming(ctx context.Context, w io.Writer, name string, args ...string) error {
	out, err := f.Run(ctx, name, args...)
	fmt.Fprint(w, out)
	return err
}

func TestComposeArgsIncludeProjectAndFiles(t *testing.T) {
	r := newFakeRunner()
	c := NewCompose(r, "demo", "compose.yaml", "overlay.yaml")

	_, err := c.Down(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "docker compose -p demo -f compose.yaml -f overlay.yaml down --remove-orphans", r.calls[0])
}

func TestNewComposeNormalizesProject(t *testing.T) {
	r := newFakeRunner()
	c := NewCompose(r, "Jenkins HA")

	_, err := c.Down(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "docker compose -p jenkinsha down --remove-orphans", r.calls[0])

	_, err = c.ProjectVolumes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "docker volume ls -q --filter label=com.docker.compose.project=jenkinsha", r.calls[1])
}

func TestComposeDownWithVolumes(t *testing.T) {
	r := newFakeRunner()
	c := NewCompose(r, "demo")

	_, err := c.Down(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, r.calls[0], "down --remove-orphans -v")
}

func TestComposeUpWrapsConvergeError(t *testing.T) {
	r := newFakeRunner()
	r.script("docker compose -p demo up -d", "yaml: invalid", errors.New("exit status 1"))
	c := NewCompose(r, "demo")

	err := c.Up(context.Background(), nil)
	require.Error(t, err)

	var convErr *ConvergeError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "docker compose", convErr.Tool)
	assert.Contains(t, convErr.Output, "yaml: invalid")
}

func TestComposePsParsesLineDelimitedJSON(t *testing.T) {
	r := newFakeRunner()
	r.script("docker compose -p demo ps -a --format json",
		`{"Name":"demo-jenkins-1-1","Service":"jenkins-1","State":"running","Health":"healthy"}
{"Name":"demo-grafana-1","Service":"grafana","State":"running","Health":""}`, nil)
	c := NewCompose(r, "demo")

	states, err := c.Ps(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "jenkins-1", states[0].Service)
	assert.Equal(t, "healthy", states[0].Health)
}

func TestComposePsParsesArrayJSON(t *testing.T) {
	r := newFakeRunner()
	r.script("docker compose -p demo ps -a --format json",
		`[{"Name":"demo-jenkins-1-1","Service":"jenkins-1","State":"running"}]`, nil)
	c := NewCompose(r, "demo")

	states, err := c.Ps(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
}

func TestComposeContainerForMissingService(t *testing.T) {
	r := newFakeRunner()
	r.script("docker compose -p demo ps -a --format json", "", nil)
	c := NewCompose(r, "demo")

	_, err := c.ContainerFor(context.Background(), "jenkins-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComposeReadyCheckStates(t *testing.T) {
	tests := []struct {
		name    string
		psJSON  string
		ready   bool
		crashed bool
	}{
		{"healthy", `{"Service":"j","State":"running","Health":"healthy"}`, true, false},
		{"no healthcheck", `{"Service":"j","State":"running","Health":""}`, true, false},
		{"starting", `{"Service":"j","State":"running","Health":"starting"}`, false, false},
		{"unhealthy", `{"Service":"j","State":"running","Health":"unhealthy"}`, false, false},
		{"exited", `{"Service":"j","State":"exited","ExitCode":1}`, false, true},
		{"not created", ``, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			r.script("docker compose -p demo ps -a --format json", tt.psJSON, nil)
			c := NewCompose(r, "demo")

			st, err := c.ReadyCheck("j")(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.ready, st.Ready)
			assert.Equal(t, tt.crashed, st.Crashed)
		})
	}
}

func TestComposeRemoveNetworkAlreadyAbsent(t *testing.T) {
	r := newFakeRunner()
	r.script("docker network rm demo_jenkins-net",
		"Error response from daemon: network demo_jenkins-net not found", errors.New("exit status 1"))
	c := NewCompose(r, "demo")

	err := c.RemoveNetwork(context.Background(), "demo_jenkins-net")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComposeNetworkExists(t *testing.T) {
	r := newFakeRunner()
	r.script("docker network inspect demo_jenkins-net", "[{...}]", nil)
	c := NewCompose(r, "demo")

	exists, err := c.NetworkExists(context.Background(), "demo_jenkins-net")
	require.NoError(t, err)
	assert.True(t, exists)

	r.script("docker network inspect gone", "[]\nError: No such network: gone", errors.New("exit status 1"))
	exists, err = c.NetworkExists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestComposeProjectVolumes(t *testing.T) {
	r := newFakeRunner()
	r.script("docker volume ls -q --filter label=com.docker.compose.project=demo",
		"demo_jenkins-home-1\ndemo_jenkins-home-2\n", nil)
	c := NewCompose(r, "demo")

	vols, err := c.ProjectVolumes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"demo_jenkins-home-1", "demo_jenkins-home-2"}, vols)
}

func TestHelmUpgradeInstallDeterministicArgs(t *testing.T) {
	r := newFakeRunner()
	h := NewHelm(r, "jenkins")

	err := h.UpgradeInstall(context.Background(), nil, "jenkins-ha", "jenkins/jenkins",
		map[string]string{"controller.ingress.hostName": "jenkins.local", "controller.adminUser": "admin"})
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	// set flags appear in sorted key order
	assert.Equal(t, "helm upgrade --install jenkins-ha jenkins/jenkins --namespace jenkins --create-namespace --wait=false "+
		"--set controller.adminUser=admin --set controller.ingress.hostName=jenkins.local", r.calls[0])
}

func TestHelmUninstallMissingRelease(t *testing.T) {
	r := newFakeRunner()
	r.script("helm uninstall jenkins-ha --namespace jenkins",
		"Error: uninstall: Release not loaded: jenkins-ha: release: not found", errors.New("exit status 1"))
	h := NewHelm(r, "jenkins")

	_, err := h.Uninstall(context.Background(), "jenkins-ha")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHelmReleaseExists(t *testing.T) {
	r := newFakeRunner()
	r.script("helm status jenkins-ha --namespace jenkins", "STATUS: deployed", nil)
	h := NewHelm(r, "jenkins")

	exists, err := h.ReleaseExists(context.Background(), "jenkins-ha")
	require.NoError(t, err)
	assert.True(t, exists)

	r.script("helm status gone --namespace jenkins", "Error: release: not found", errors.New("exit status 1"))
	exists, err = h.ReleaseExists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

const podListJSON = `{
  "items": [
    {
      "metadata": {"name": "jenkins-ha-0"},
      "status": {
        "phase": "Running",
        "containerStatuses": [{"ready": true, "restartCount": 0}]
      }
    },
    {
      "metadata": {"name": "jenkins-ha-1"},
      "status": {
        "phase": "Pending",
        "containerStatuses": []
      }
    }
  ]
}`

func TestKubectlPods(t *testing.T) {
	r := newFakeRunner()
	r.script("kubectl get pods --namespace jenkins -l app.kubernetes.io/instance=jenkins-ha -o json", podListJSON, nil)
	k := NewKubectl(r, "jenkins")

	pods, err := k.Pods(context.Background(), "app.kubernetes.io/instance=jenkins-ha")
	require.NoError(t, err)
	require.Len(t, pods, 2)
	assert.True(t, pods[0].Ready)
	assert.Equal(t, "Pending", pods[1].Phase)
	assert.False(t, pods[1].Ready)
}

func TestKubectlPodsReadyCheck(t *testing.T) {
	r := newFakeRunner()
	k := NewKubectl(r, "jenkins")
	sel := "app.kubernetes.io/instance=jenkins-ha"
	cmdline := "kubectl get pods --namespace jenkins -l " + sel + " -o json"

	r.script(cmdline, `{"items":[]}`, nil)
	st, err := k.PodsReadyCheck(sel)(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Ready)

	r.script(cmdline, podListJSON, nil)
	st, err = k.PodsReadyCheck(sel)(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Ready, "a pending pod keeps the endpoint pending")

	r.script(cmdline, `{"items":[{"metadata":{"name":"jenkins-ha-0"},"status":{"phase":"Running","containerStatuses":[{"ready":true,"restartCount":0}]}}]}`, nil)
	st, err = k.PodsReadyCheck(sel)(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready)

	r.script(cmdline, `{"items":[{"metadata":{"name":"jenkins-ha-0"},"status":{"phase":"Failed","containerStatuses":[]}}]}`, nil)
	st, err = k.PodsReadyCheck(sel)(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Crashed)
}

func TestKubectlDeletePVCsNothingMatched(t *testing.T) {
	r := newFakeRunner()
	r.script("kubectl delete pvc --namespace jenkins -l app.kubernetes.io/instance=jenkins-ha --ignore-not-found", "", nil)
	k := NewKubectl(r, "jenkins")

	_, err := k.DeletePVCs(context.Background(), "app.kubernetes.io/instance=jenkins-ha")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKubectlDeleteNamespaceAlreadyAbsent(t *testing.T) {
	r := newFakeRunner()
	r.script("kubectl get namespace jenkins",
		`Error from server (NotFound): namespaces "jenkins" not found`, errors.New("exit status 1"))
	k := NewKubectl(r, "jenkins")

	err := k.DeleteNamespace(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutputSaysNotFound(t *testing.T) {
	assert.True(t, outputSaysNotFound("Error: release: not found"))
	assert.True(t, outputSaysNotFound("No such network: x"))
	assert.True(t, outputSaysNotFound(`Error from server (NotFound)`))
	assert.False(t, outputSaysNotFound("permission denied"))
}
