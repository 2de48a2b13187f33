// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

const rdsPageSize = 100

// rdsAPI is the subset of the RDS client the lister uses.
type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

type rdsInstanceLister struct {
	api       rdsAPI
	accountID string
	region    string
}

func newRDSInstanceLister(sess *credentials.Session, region string) *rdsInstanceLister {
	return &rdsInstanceLister{
		api: rds.NewFromConfig(sess.Config(), func(o *rds.Options) {
			o.Region = region
		}),
		accountID: sess.AccountID,
		region:    region,
	}
}

func (l *rdsInstanceLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		Marker:     pageToken(token),
		MaxRecords: aws.Int32(rdsPageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.DBInstances))
	for _, db := range out.DBInstances {
		nativeState := aws.ToString(db.DBInstanceStatus)
		record := models.ResourceRecord{
			Type:      models.ResourceRDSInstance,
			ID:        aws.ToString(db.DBInstanceIdentifier),
			Name:      aws.ToString(db.DBInstanceIdentifier),
			State:     mapRDSState(nativeState),
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"engine":         aws.ToString(db.Engine),
				"engine_version": aws.ToString(db.EngineVersion),
				"instance_class": aws.ToString(db.DBInstanceClass),
				"multi_az":       strconv.FormatBool(aws.ToBool(db.MultiAZ)),
				"native_state":   nativeState,
			},
		}
		if db.AllocatedStorage != nil {
			record.Metadata["allocated_storage_gib"] = strconv.Itoa(int(*db.AllocatedStorage))
		}
		if db.DBSubnetGroup != nil {
			if v := aws.ToString(db.DBSubnetGroup.VpcId); v != "" {
				record.References = append(record.References, models.Reference{Type: models.ResourceVPC, ID: v})
			}
		}
		records = append(records, record)
	}
	return records, aws.ToString(out.Marker), nil
}

func mapRDSState(native string) models.ResourceState {
	switch native {
	case "available":
		return models.StateRunning
	case "stopped", "stopping":
		return models.StateStopped
	case "creating", "starting", "backing-up", "modifying", "rebooting":
		return models.StatePending
	case "deleting":
		return models.StateDeleting
	case "failed", "inaccessible-encryption-credentials", "incompatible-parameters":
		return models.StateError
	default:
		return models.StateUnknown
	}
}
