/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/janitor/internal/faults"
	"github.com/friendsincode/janitor/internal/library"
	"github.com/friendsincode/janitor/internal/policy"
)

// DefaultExclusionTag keeps an item regardless of schedules and rules.
const DefaultExclusionTag = "janitorr_keep"

// PolicyFile is the on-disk retention configuration.
//
//	leaving_soon: 14d
//	exclusion_tags: [janitorr_keep]
//	media:
//	  movies:
//	    expiration: 60d
//	  tv:
//	    disk_thresholds:
//	      10: 30d
//	      20: 90d
//	tags:
//	  - tag: demo
//	    expiration: 7d
//	tag_minimum_free_disk_percent: 15
type PolicyFile struct {
	LeavingSoon               string                     `yaml:"leaving_soon"`
	ExclusionTags             []string                   `yaml:"exclusion_tags"`
	Media                     map[string]MediaPolicyFile `yaml:"media"`
	Tags                      []TagScheduleFile          `yaml:"tags"`
	TagMinimumFreeDiskPercent float64                    `yaml:"tag_minimum_free_disk_percent"`
}

// MediaPolicyFile is the schedule of one media type.
type MediaPolicyFile struct {
	Expiration     string            `yaml:"expiration"`
	DiskThresholds map[string]string `yaml:"disk_thresholds"`
}

// TagScheduleFile is one entry of the ordered tag list.
type TagScheduleFile struct {
	Tag        string `yaml:"tag"`
	Expiration string `yaml:"expiration"`
}

// Retention is the validated retention configuration.
type Retention struct {
	Policy        *policy.Policy
	ExclusionTags []string
}

// LoadPolicy reads and validates the policy file at path.
func LoadPolicy(path string) (*Retention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, faults.Configf("JANITOR_POLICY_FILE", "policy file %s does not exist", path)
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy validates a YAML policy document.
func ParsePolicy(data []byte) (*Retention, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, faults.Configf("policy", "invalid yaml: %v", err)
	}
	return file.Build()
}

// Build converts the file representation into a policy.
func (f *PolicyFile) Build() (*Retention, error) {
	if strings.TrimSpace(f.LeavingSoon) == "" {
		return nil, faults.Configf("leaving_soon", "must be set")
	}
	leavingSoon, err := policy.ParseDuration(f.LeavingSoon)
	if err != nil {
		return nil, faults.Configf("leaving_soon", "%v", err)
	}

	cfg := policy.Config{
		LeavingSoon:               leavingSoon,
		Media:                     make(map[library.MediaType]policy.MediaPolicy),
		TagMinimumFreeDiskPercent: f.TagMinimumFreeDiskPercent,
	}
	if f.TagMinimumFreeDiskPercent < 0 || f.TagMinimumFreeDiskPercent > 100 {
		return nil, faults.Configf("tag_minimum_free_disk_percent", "must be between 0 and 100")
	}

	for name, mp := range f.Media {
		mediaType, err := library.ParseMediaType(name)
		if err != nil {
			return nil, faults.Configf("media", "%v", err)
		}
		field := "media." + name
		var out policy.MediaPolicy
		if mp.Expiration != "" {
			if out.HardExpiration, err = policy.ParseDuration(mp.Expiration); err != nil {
				return nil, faults.Configf(field+".expiration", "%v", err)
			}
		}
		for pct, exp := range mp.DiskThresholds {
			free, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(pct), "%"), 64)
			if err != nil {
				return nil, faults.Configf(field+".disk_thresholds", "invalid percentage %q", pct)
			}
			d, err := policy.ParseDuration(exp)
			if err != nil {
				return nil, faults.Configf(field+".disk_thresholds", "%v", err)
			}
			out.Thresholds = append(out.Thresholds, policy.Threshold{FreeDiskPercent: free, Expiration: d})
		}
		if out.HardExpiration > 0 && len(out.Thresholds) > 0 {
			return nil, faults.Configf(field, "set either expiration or disk_thresholds, not both")
		}
		cfg.Media[mediaType] = out
	}

	for i, ts := range f.Tags {
		d, err := policy.ParseDuration(ts.Expiration)
		if err != nil {
			return nil, faults.Configf(fmt.Sprintf("tags[%d].expiration", i), "%v", err)
		}
		cfg.TagSchedules = append(cfg.TagSchedules, policy.TagSchedule{Tag: ts.Tag, Expiration: d})
	}

	p, err := policy.New(cfg)
	if err != nil {
		return nil, err
	}

	tags := f.ExclusionTags
	if tags == nil {
		tags = []string{DefaultExclusionTag}
	}
	var exclusion []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			exclusion = append(exclusion, t)
		}
	}
	return &Retention{Policy: p, ExclusionTags: exclusion}, nil
}

// ExclusionTag returns the first exclusion tag item carries.
func (r *Retention) ExclusionTag(item *library.Item) string {
	for _, t := range r.ExclusionTags {
		if item.HasTag(t) {
			return t
		}
	}
	return ""
}
