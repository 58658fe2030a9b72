package naming

import "testing"

// These tests pin the naming conventions to the orchestrator versions
// we deploy against (compose v2, jenkins chart fullname helper). A
// failure here means version skew, not a bug in the functions.

func TestNormalizeProject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"demo", "demo"},
		{"Demo", "demo"},
		{"My Project", "myproject"},
		{"jenkins-ha", "jenkins-ha"},
		{"jenkins_ha", "jenkins_ha"},
		{"-leading", "leading"},
		{"_leading", "leading"},
		{"weird!!chars##", "weirdchars"},
		{"", "default"},
		{"!!!", "default"},
	}

	for _, tt := range tests {
		if got := NormalizeProject(tt.in); got != tt.want {
			t.Errorf("NormalizeProject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComposeNetworkName(t *testing.T) {
	tests := []struct {
		project string
		label   string
		want    string
	}{
		{"demo", "jenkins-net", "demo_jenkins-net"},
		{"Jenkins HA", "jenkins-net", "jenkinsha_jenkins-net"},
		{"", "jenkins-net", "default_jenkins-net"},
	}

	for _, tt := range tests {
		if got := ComposeNetworkName(tt.project, tt.label); got != tt.want {
			t.Errorf("ComposeNetworkName(%q, %q) = %q, want %q", tt.project, tt.label, got, tt.want)
		}
	}
}

func TestComposeContainerName(t *testing.T) {
	if got := ComposeContainerName("demo", "jenkins-1", 1); got != "demo-jenkins-1-1" {
		t.Errorf("ComposeContainerName = %q, want demo-jenkins-1-1", got)
	}
}

func TestHelmObjectNamesReleaseContainsChart(t *testing.T) {
	names := HelmObjectNames("jenkins-ha")

	if names.StatefulSet != "jenkins-ha" {
		t.Errorf("StatefulSet = %q, want jenkins-ha", names.StatefulSet)
	}
	if names.AltStatefulSet != "jenkins-ha-jenkins" {
		t.Errorf("AltStatefulSet = %q, want jenkins-ha-jenkins", names.AltStatefulSet)
	}
	if names.Service != names.StatefulSet {
		t.Errorf("Service = %q, want %q", names.Service, names.StatefulSet)
	}
}

func TestHelmObjectNamesReleaseWithoutChart(t *testing.T) {
	names := HelmObjectNames("ci")

	if names.StatefulSet != "ci-jenkins" {
		t.Errorf("StatefulSet = %q, want ci-jenkins", names.StatefulSet)
	}
	if names.AltStatefulSet != "ci" {
		t.Errorf("AltStatefulSet = %q, want ci", names.AltStatefulSet)
	}
}

func TestInstanceSelector(t *testing.T) {
	if got := InstanceSelector("jenkins-ha"); got != "app.kubernetes.io/instance=jenkins-ha" {
		t.Errorf("InstanceSelector = %q", got)
	}
}
