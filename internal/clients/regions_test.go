// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"testing"

	"github.com/tomtom215/stratus/internal/models"
)

func TestSupportedInRegion(t *testing.T) {
	tests := []struct {
		name   string
		rt     models.ResourceType
		region string
		want   bool
	}{
		{"ec2 in standard region", models.ResourceEC2Instance, "us-west-2", true},
		{"ec2 in govcloud", models.ResourceEC2Instance, "us-gov-west-1", false},
		{"rds in china partition", models.ResourceRDSInstance, "cn-north-1", false},
		{"lambda in iso partition", models.ResourceLambda, "us-iso-east-1", false},
		{"s3 global allows any region", models.ResourceS3Bucket, "us-gov-west-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupportedInRegion(tt.rt, tt.region); got != tt.want {
				t.Errorf("SupportedInRegion(%s, %s) = %v, want %v", tt.rt, tt.region, got, tt.want)
			}
		})
	}
}

func TestEffectiveServiceRegion(t *testing.T) {
	if got := EffectiveServiceRegion(models.ResourceS3Bucket, "eu-west-1"); got != globalRegion {
		t.Errorf("s3 region = %q, want pinned %q", got, globalRegion)
	}
	if got := EffectiveServiceRegion(models.ResourceEC2Instance, "eu-west-1"); got != "eu-west-1" {
		t.Errorf("ec2 region = %q, want identity", got)
	}
}

func TestIsGlobal(t *testing.T) {
	if !IsGlobal(models.ResourceS3Bucket) {
		t.Error("s3:bucket should be global")
	}
	if IsGlobal(models.ResourceVPC) {
		t.Error("ec2:vpc should be regional")
	}
}
