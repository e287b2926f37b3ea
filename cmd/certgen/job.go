package main

import (
	"fmt"
	"os"
	"path/filepath"

	"CERT-PDF/internal/processor"

	"gopkg.in/yaml.v3"
)

// jobFile is an offline generation run.
type jobFile struct {
	Template   string                `yaml:"template"`
	Course     *processor.Course     `yaml:"course"`
	Appearance processor.Appearance  `yaml:"appearance"`
	Fields     []processor.Field     `yaml:"fields"`
	Teams      []processor.Team      `yaml:"teams"`
	Recipients []processor.Recipient `yaml:"recipients"`
}

func parseJob(data []byte) (*jobFile, error) {
	var job jobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	if len(job.Recipients) == 0 {
		return nil, fmt.Errorf("job file has no recipients")
	}
	for i, f := range job.Fields {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return &job, nil
}

// loadJob reads a job file. A relative template path is taken from the job
// file's directory.
func loadJob(path string) (*jobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	job, err := parseJob(data)
	if err != nil {
		return nil, err
	}
	if job.Template != "" && !filepath.IsAbs(job.Template) {
		job.Template = filepath.Join(filepath.Dir(path), job.Template)
	}
	return job, nil
}

func (j *jobFile) teams() map[string]processor.Team {
	out := make(map[string]processor.Team, len(j.Teams))
	for _, t := range j.Teams {
		out[t.Name] = t
	}
	return out
}
