// Package naming derives the names the external orchestrators assign to
// runtime resources. Each convention lives in one pure function so a
// version-skew regression shows up in a unit test instead of as a
// generic "network not found" at deploy time.
package naming

import (
	"fmt"
	"strings"
)

// ComposeNameSeparator joins the project name and a resource label in
// names generated by docker compose (networks, volumes).
const ComposeNameSeparator = "_"

// ComposeContainerSeparator joins the project, service and replica
// index in container names generated by compose v2.
const ComposeContainerSeparator = "-"

// NormalizeProject applies compose's documented project-name
// normalization: lowercased, restricted to [a-z0-9_-], and must start
// with a letter or digit. Compose drops offending characters rather
// than rejecting the name.
func NormalizeProject(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	out := b.String()
	if out == "" {
		return "default"
	}
	return out
}

// ComposeNetworkName returns the docker network name compose generates
// for a network declared under the given label, e.g. project "demo"
// and label "jenkins-net" yield "demo_jenkins-net". The derived name
// must match what compose itself generates or every cross-stack
// reference (Prometheus joining the Jenkins network) fails at runtime
// with the orchestrator's own "network not found".
func ComposeNetworkName(project, label string) string {
	return NormalizeProject(project) + ComposeNameSeparator + label
}

// ComposeVolumeName returns the docker volume name for a volume
// declared under the given label.
func ComposeVolumeName(project, label string) string {
	return NormalizeProject(project) + ComposeNameSeparator + label
}

// ComposeContainerName returns the container name for the n-th replica
// of a service (1-based), per the compose v2 convention.
func ComposeContainerName(project, service string, index int) string {
	return strings.Join([]string{NormalizeProject(project), service, fmt.Sprint(index)}, ComposeContainerSeparator)
}

// HelmNames holds the kubernetes object names guessed for a Jenkins
// chart release. These follow the chart's fullname helper: the release
// name itself when it already contains the chart name, otherwise
// "{release}-{chart}". The alternate guesses keep the second form
// around because the convention is a heuristic, not a contract; the
// real source of truth is the rendered chart template.
type HelmNames struct {
	StatefulSet string
	Service     string
	Ingress     string
	Secret      string

	// AltStatefulSet and AltService are the fallback guesses consumers
	// should try when the primary name does not resolve.
	AltStatefulSet string
	AltService     string
}

const helmChartName = "jenkins"

// HelmObjectNames computes the object names for a release of the
// Jenkins chart.
func HelmObjectNames(release string) HelmNames {
	fullname := release
	alt := release + "-" + helmChartName
	if !strings.Contains(release, helmChartName) {
		fullname, alt = alt, release
	}
	return HelmNames{
		StatefulSet:    fullname,
		Service:        fullname,
		Ingress:        fullname,
		Secret:         fullname,
		AltStatefulSet: alt,
		AltService:     alt,
	}
}

// InstanceSelector returns the label selector scoping kubectl queries
// to one release's pods.
func InstanceSelector(release string) string {
	return "app.kubernetes.io/instance=" + release
}
