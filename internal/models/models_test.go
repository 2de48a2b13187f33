// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestResourceRecordRoundTrip(t *testing.T) {
	record := ResourceRecord{
		Type:      ResourceEC2Instance,
		ID:        "i-0abc123def456",
		Name:      "web-1",
		State:     StateRunning,
		Region:    "eu-west-1",
		AccountID: "111122223333",
		Metadata: map[string]string{
			"instance_type": "t3.medium",
			"native_state":  "running",
		},
		References: []Reference{
			{Type: ResourceVPC, ID: "vpc-0aa11bb22"},
			{Type: ResourceSubnet, ID: "subnet-0cc33dd44"},
		},
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ResourceRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !record.Equal(decoded) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", decoded, record)
	}
}

func TestFetchUnitKey(t *testing.T) {
	unit := FetchUnit{
		AccountID: "111122223333",
		Profile:   "prod",
		Region:    "us-east-1",
		Type:      ResourceRDSInstance,
	}
	want := "111122223333/us-east-1/rds:instance"
	if got := unit.Key(); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestSummarize(t *testing.T) {
	success := UnitOutcome{Records: []ResourceRecord{{ID: "i-1"}}}
	failure := UnitOutcome{Error: &UnitError{Kind: "throttled", Message: "rate exceeded"}}

	tests := []struct {
		name     string
		units    map[string]UnitOutcome
		expected AggregationStatus
	}{
		{"all succeed", map[string]UnitOutcome{"a": success, "b": success}, StatusComplete},
		{"mixed", map[string]UnitOutcome{"a": success, "b": failure}, StatusPartial},
		{"all fail", map[string]UnitOutcome{"a": failure, "b": failure}, StatusDegraded},
		{"empty", map[string]UnitOutcome{}, StatusComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregationResult{Units: tt.units}
			result.Summarize()
			if result.Status != tt.expected {
				t.Errorf("status = %q, want %q", result.Status, tt.expected)
			}
		})
	}
}

func TestParseResourceType(t *testing.T) {
	if _, err := ParseResourceType("ec2:instance"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseResourceType("dynamodb:table"); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestProfileValid(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		valid   bool
	}{
		{"static with keys", Profile{Name: "dev", Type: ProfileStatic, HasStaticKeys: true}, true},
		{"static without keys", Profile{Name: "dev", Type: ProfileStatic}, false},
		{"role complete", Profile{Name: "prod", Type: ProfileRole, RoleARN: "arn:aws:iam::1:role/x", SourceProfile: "dev"}, true},
		{"role missing source", Profile{Name: "prod", Type: ProfileRole, RoleARN: "arn:aws:iam::1:role/x"}, false},
		{"sso session form", Profile{Name: "org", Type: ProfileSSO, SSOSession: "corp"}, true},
		{"sso legacy form", Profile{Name: "org", Type: ProfileSSO, SSOStartURL: "https://x.awsapps.com/start", SSOAccountID: "1", SSORoleName: "Admin"}, true},
		{"sso incomplete", Profile{Name: "org", Type: ProfileSSO, SSOStartURL: "https://x.awsapps.com/start"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
