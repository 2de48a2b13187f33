// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package models defines the shared data types of the aggregation engine:
// resource records, fetch units, aggregation results, profile and session
// descriptors, and the API response envelope.
package models

import (
	"fmt"
	"strings"
)

// ResourceType identifies a class of cloud resource that Stratus can inventory.
type ResourceType string

// Supported resource types.
const (
	ResourceEC2Instance  ResourceType = "ec2:instance"
	ResourceVPC          ResourceType = "ec2:vpc"
	ResourceSubnet       ResourceType = "ec2:subnet"
	ResourceEBSVolume    ResourceType = "ec2:volume"
	ResourceS3Bucket     ResourceType = "s3:bucket"
	ResourceRDSInstance  ResourceType = "rds:instance"
	ResourceLambda       ResourceType = "lambda:function"
	ResourceLoadBalancer ResourceType = "elbv2:loadbalancer"
)

// AllResourceTypes lists every supported resource type in stable order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceEC2Instance,
		ResourceVPC,
		ResourceSubnet,
		ResourceEBSVolume,
		ResourceS3Bucket,
		ResourceRDSInstance,
		ResourceLambda,
		ResourceLoadBalancer,
	}
}

// Service returns the AWS service half of the type, e.g. "ec2" for
// "ec2:instance". Rate limit buckets and metrics are labelled by service.
func (t ResourceType) Service() string {
	if i := strings.IndexByte(string(t), ':'); i > 0 {
		return string(t)[:i]
	}
	return string(t)
}

// ParseResourceType validates a resource type string.
func ParseResourceType(s string) (ResourceType, error) {
	for _, rt := range AllResourceTypes() {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// ResourceState is a normalized lifecycle state shared across resource types.
// Provider-native states map onto this coarse set; the native value is kept
// in Metadata under "native_state" when it carries more detail.
type ResourceState string

const (
	StateRunning  ResourceState = "running"
	StateStopped  ResourceState = "stopped"
	StatePending  ResourceState = "pending"
	StateDeleting ResourceState = "deleting"
	StateError    ResourceState = "error"
	StateUnknown  ResourceState = "unknown"
)

// Reference is a typed link from one resource to another, expressed by
// identifier. Consumers resolve references lazily; records never embed
// other records.
type Reference struct {
	Type ResourceType `json:"type"`
	ID   string       `json:"id"`
}

// ResourceRecord is the normalized representation of one discovered resource.
type ResourceRecord struct {
	Type       ResourceType      `json:"type"`
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	State      ResourceState     `json:"state"`
	Region     string            `json:"region"`
	AccountID  string            `json:"account_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	References []Reference       `json:"references,omitempty"`
}

// Equal reports field-for-field equality of two records.
// Used by tests to verify wire round-trips.
func (r ResourceRecord) Equal(other ResourceRecord) bool {
	if r.Type != other.Type || r.ID != other.ID || r.Name != other.Name ||
		r.State != other.State || r.Region != other.Region || r.AccountID != other.AccountID {
		return false
	}
	if len(r.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range r.Metadata {
		if other.Metadata[k] != v {
			return false
		}
	}
	if len(r.References) != len(other.References) {
		return false
	}
	for i, ref := range r.References {
		if other.References[i] != ref {
			return false
		}
	}
	return true
}
