package jenkins

import (
	"encoding/xml"
	"fmt"
)

// flowDefinition is the config.xml document for a scripted pipeline
// job (workflow-job plugin).
type flowDefinition struct {
	XMLName     xml.Name       `xml:"flow-definition"`
	Plugin      string         `xml:"plugin,attr"`
	Description string         `xml:"description"`
	Definition  pipelineScript `xml:"definition"`
	Disabled    bool           `xml:"disabled"`
}

type pipelineScript struct {
	Class   string `xml:"class,attr"`
	Plugin  string `xml:"plugin,attr"`
	Script  string `xml:"script"`
	Sandbox bool   `xml:"sandbox"`
}

// DefaultPipelineScript is the sample workload seeded after deploy: a
// trivial pipeline that proves the controller schedules and runs jobs.
const DefaultPipelineScript = `pipeline {
    agent any
    stages {
        stage('Hello') {
            steps {
                echo 'Hello from the HA demo stack'
                sh 'hostname'
            }
        }
    }
}`

// PipelineJobXML renders a config.xml for a pipeline job running the
// given script. Output is deterministic for a given script.
func PipelineJobXML(description, script string) ([]byte, error) {
	doc := flowDefinition{
		Plugin:      "workflow-job",
		Description: description,
		Definition: pipelineScript{
			Class:   "org.jenkinsci.plugins.workflow.cps.CpsFlowDefinition",
			Plugin:  "workflow-cps",
			Script:  script,
			Sandbox: true,
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render job config: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
