package reset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkan3/democtl/pkg/driver"
)

// fakeRunner replays scripted responses keyed by the full command line
// and records every call.
type fakeRunner struct {
	responses map[string]fakeResp
	calls     []string
}

type fakeResp struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]fakeResp{}}
}

func (f *fakeRunner) script(cmdline, out string, err error) {
	f.responses[cmdline] = fakeResp{out: out, err: err}
}

func (f *fakeRunner) Look(string) error { return nil }

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmdline)
	resp := f.responses[cmdline]
	return resp.out, resp.err
}

func (f *fakeRunner) RunStreaming(ctx context.Context, w io.Writer, name string, args ...string) error {
	out, err := f.Run(ctx, name, args...)
	fmt.Fprint(w, out)
	return err
}

// recordingConfirmer answers a scripted sequence and records prompts.
type recordingConfirmer struct {
	answers []bool
	prompts []string
}

func (r *recordingConfirmer) Confirm(prompt string) bool {
	r.prompts = append(r.prompts, prompt)
	if len(r.answers) == 0 {
		return false
	}
	answer := r.answers[0]
	r.answers = r.answers[1:]
	return answer
}

func controller(c Confirmer) (*Controller, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Controller{Confirm: c, Out: &buf}, &buf
}

func scriptCleanDocker(r *fakeRunner) {
	r.script("docker compose -p demo ps -a --format json", "", nil)
	r.script("docker volume ls -q --filter label=com.docker.compose.project=demo", "", nil)
	r.script("docker network rm demo_jenkins-net",
		"Error: network demo_jenkins-net not found", errors.New("exit status 1"))
}

func scriptPopulatedDocker(r *fakeRunner) {
	r.script("docker compose -p demo ps -a --format json",
		`{"Name":"demo-jenkins-1-1","Service":"jenkins-1","State":"running"}`, nil)
	r.script("docker volume ls -q --filter label=com.docker.compose.project=demo", "demo_jenkins-home\n", nil)
	r.script("docker network rm demo_jenkins-net", "", nil)
}

func TestResetDockerRemovesEverything(t *testing.T) {
	r := newFakeRunner()
	scriptPopulatedDocker(r)
	c, _ := controller(AutoApprove{})

	outcomes := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"),
		DockerInputs{Project: "demo", NetworkLabel: "jenkins-net"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Done, "step %s should have run", o.Step)
		assert.NoError(t, o.Err)
	}
	assert.Contains(t, r.calls, "docker compose -p demo down --remove-orphans")
	assert.Contains(t, r.calls, "docker volume rm demo_jenkins-home")
	assert.Contains(t, r.calls, "docker network rm demo_jenkins-net")
	assert.True(t, c.Summarize(outcomes))
}

func TestResetDockerIdempotentOnCleanEnvironment(t *testing.T) {
	r := newFakeRunner()
	scriptCleanDocker(r)
	c, out := controller(AutoApprove{})

	outcomes := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"),
		DockerInputs{Project: "demo", NetworkLabel: "jenkins-net"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.NothingToDo, "step %s should report nothing to do", o.Step)
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, 3, strings.Count(out.String(), "nothing to do"))
	assert.True(t, c.Summarize(outcomes))
}

func TestResetDockerTwiceInARow(t *testing.T) {
	r := newFakeRunner()
	scriptPopulatedDocker(r)
	c, _ := controller(AutoApprove{})
	in := DockerInputs{Project: "demo", NetworkLabel: "jenkins-net"}

	first := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"), in)
	require.True(t, c.Summarize(first))

	// Everything is gone now.
	scriptCleanDocker(r)
	second := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"), in)
	require.True(t, c.Summarize(second), "second teardown must succeed on an already-clean environment")
	for _, o := range second {
		assert.True(t, o.NothingToDo)
	}
}

func TestResetDockerNormalizedProjectNamesAgree(t *testing.T) {
	r := newFakeRunner()
	r.script("docker compose -p jenkinsha ps -a --format json",
		`{"Name":"jenkinsha-jenkins-1-1","Service":"jenkins-1","State":"running"}`, nil)
	r.script("docker volume ls -q --filter label=com.docker.compose.project=jenkinsha",
		"jenkinsha_jenkins-home\n", nil)
	r.script("docker network rm jenkinsha_jenkins-net", "", nil)
	c, _ := controller(AutoApprove{})

	// A project name needing normalization must yield the same spelling
	// in the -p flag, the volume label filter and the derived network.
	outcomes := c.ResetDocker(context.Background(), driver.NewCompose(r, "Jenkins HA"),
		DockerInputs{Project: "Jenkins HA", NetworkLabel: "jenkins-net"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Done, "step %s should have run", o.Step)
		assert.NoError(t, o.Err)
	}
	assert.Contains(t, r.calls, "docker compose -p jenkinsha down --remove-orphans")
	assert.Contains(t, r.calls, "docker volume rm jenkinsha_jenkins-home")
	assert.Contains(t, r.calls, "docker network rm jenkinsha_jenkins-net")
}

func TestResetDockerDeclinedConfirmationSkipsStep(t *testing.T) {
	r := newFakeRunner()
	scriptPopulatedDocker(r)
	// Approve volumes, decline network removal.
	conf := &recordingConfirmer{answers: []bool{true, false}}
	c, _ := controller(conf)

	outcomes := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"),
		DockerInputs{Project: "demo", NetworkLabel: "jenkins-net"})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[1].Done)
	assert.True(t, outcomes[2].Skipped)
	assert.NotContains(t, r.calls, "docker network rm demo_jenkins-net")

	// The declined prompt names the shared resource.
	require.Len(t, conf.prompts, 2)
	assert.Contains(t, conf.prompts[1], "demo_jenkins-net")
}

func TestResetDockerContinuesPastStepFailure(t *testing.T) {
	r := newFakeRunner()
	scriptPopulatedDocker(r)
	r.script("docker volume rm demo_jenkins-home", "volume is in use", errors.New("exit status 1"))
	c, out := controller(AutoApprove{})

	outcomes := c.ResetDocker(context.Background(), driver.NewCompose(r, "demo"),
		DockerInputs{Project: "demo", NetworkLabel: "jenkins-net"})

	require.Len(t, outcomes, 3)
	assert.Error(t, outcomes[1].Err)
	assert.True(t, outcomes[2].Done, "teardown continues after a failed step")
	assert.Contains(t, out.String(), "continuing")
	assert.False(t, c.Summarize(outcomes))
}

func TestResetK8sRemovesEverything(t *testing.T) {
	r := newFakeRunner()
	r.script("helm uninstall jenkins-ha --namespace jenkins", "release \"jenkins-ha\" uninstalled", nil)
	r.script("kubectl delete pvc --namespace jenkins -l app.kubernetes.io/instance=jenkins-ha --ignore-not-found",
		"persistentvolumeclaim \"jenkins-home-jenkins-ha-0\" deleted", nil)
	r.script("kubectl get namespace jenkins", "jenkins Active", nil)
	r.script("kubectl delete namespace jenkins", "namespace \"jenkins\" deleted", nil)
	c, _ := controller(AutoApprove{})

	outcomes := c.ResetK8s(context.Background(),
		driver.NewHelm(r, "jenkins"), driver.NewKubectl(r, "jenkins"),
		K8sInputs{Release: "jenkins-ha", Namespace: "jenkins"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Done)
		assert.NoError(t, o.Err)
	}
}

func TestResetK8sIdempotentOnCleanCluster(t *testing.T) {
	r := newFakeRunner()
	r.script("helm uninstall jenkins-ha --namespace jenkins",
		"Error: uninstall: Release not loaded: jenkins-ha: release: not found", errors.New("exit status 1"))
	r.script("kubectl delete pvc --namespace jenkins -l app.kubernetes.io/instance=jenkins-ha --ignore-not-found", "", nil)
	r.script("kubectl get namespace jenkins",
		`Error from server (NotFound): namespaces "jenkins" not found`, errors.New("exit status 1"))
	c, _ := controller(AutoApprove{})

	outcomes := c.ResetK8s(context.Background(),
		driver.NewHelm(r, "jenkins"), driver.NewKubectl(r, "jenkins"),
		K8sInputs{Release: "jenkins-ha", Namespace: "jenkins"})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.NothingToDo, "step %s should report nothing to do", o.Step)
	}
	assert.True(t, c.Summarize(outcomes))
}

func TestAutoApprove(t *testing.T) {
	assert.True(t, AutoApprove{}.Confirm("anything"))
}
