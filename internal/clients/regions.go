// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"strings"

	"github.com/tomtom215/stratus/internal/models"
)

// globalRegion is where global service listings are issued from.
const globalRegion = "us-east-1"

// globalTypes are services whose listing APIs are not regional. Requests
// for any region resolve to one pinned listing; records from these listers
// carry the pinned region.
var globalTypes = map[models.ResourceType]bool{
	models.ResourceS3Bucket: true,
}

// isolatedPartitionPrefixes are region families served by separate AWS
// partitions with their own endpoints and credentials. Stratus only speaks
// to the standard partition, so these fail fast instead of timing out
// against the wrong endpoint.
var isolatedPartitionPrefixes = []string{
	"us-gov-",
	"cn-",
	"us-iso-",
	"us-isob-",
}

// SupportedInRegion reports whether a resource type can be listed in the
// given region. Global services are supported everywhere (the listing is
// pinned); isolated-partition regions are supported nowhere.
func SupportedInRegion(rt models.ResourceType, region string) bool {
	if globalTypes[rt] {
		return true
	}
	for _, prefix := range isolatedPartitionPrefixes {
		if strings.HasPrefix(region, prefix) {
			return false
		}
	}
	return true
}

// EffectiveServiceRegion maps a requested region to the region the service
// client should actually target. Identity for regional services.
func EffectiveServiceRegion(rt models.ResourceType, region string) string {
	if globalTypes[rt] {
		return globalRegion
	}
	return region
}

// IsGlobal reports whether a resource type's listing is account-global
// rather than regional.
func IsGlobal(rt models.ResourceType) bool {
	return globalTypes[rt]
}
