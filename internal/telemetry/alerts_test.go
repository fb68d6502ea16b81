/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertsFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

func loadAlerts(t *testing.T) alertsFile {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("alerts file not found at %s", alertsPath)
	}
	var cfg alertsFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("invalid alerts.yml: %v", err)
	}
	if len(cfg.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}
	return cfg
}

func TestCriticalAlertsPresent(t *testing.T) {
	cfg := loadAlerts(t)
	names := map[string]bool{}
	for _, g := range cfg.Groups {
		for _, r := range g.Rules {
			names[r.Alert] = true
		}
	}
	for _, want := range []string{"JanitorTickStale", "JanitorTickFailures", "JanitorCleanupFailures", "JanitorHighAPIErrorRate", "JanitorNoLeader"} {
		if !names[want] {
			t.Errorf("alert %s not defined", want)
		}
	}
}

func TestAlertLabels(t *testing.T) {
	cfg := loadAlerts(t)
	for _, g := range cfg.Groups {
		for _, r := range g.Rules {
			if r.Alert == "" {
				continue
			}
			if r.Labels["severity"] == "" {
				t.Errorf("alert %s missing severity label", r.Alert)
			}
			if r.Annotations["summary"] == "" {
				t.Errorf("alert %s missing summary annotation", r.Alert)
			}
		}
	}
}

// Every metric an alert refers to must be declared in metrics.go.
func TestAlertMetricsExist(t *testing.T) {
	cfg := loadAlerts(t)
	src, err := os.ReadFile("metrics.go")
	if err != nil {
		t.Fatalf("read metrics.go: %v", err)
	}
	for _, g := range cfg.Groups {
		for _, r := range g.Rules {
			for _, field := range strings.FieldsFunc(r.Expr, func(c rune) bool {
				return !(c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
			}) {
				if !strings.HasPrefix(field, "janitor_") {
					continue
				}
				name := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(field, "_bucket"), "_count"), "_sum")
				if !strings.Contains(string(src), `"`+name+`"`) {
					t.Errorf("alert %s uses undeclared metric %s", r.Alert, name)
				}
			}
		}
	}
}
