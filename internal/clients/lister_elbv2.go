// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

const elbv2PageSize = 100

// elbv2API is the subset of the ELBv2 client the lister uses.
type elbv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
}

type loadBalancerLister struct {
	api       elbv2API
	accountID string
	region    string
}

func newLoadBalancerLister(sess *credentials.Session, region string) *loadBalancerLister {
	return &loadBalancerLister{
		api: elbv2.NewFromConfig(sess.Config(), func(o *elbv2.Options) {
			o.Region = region
		}),
		accountID: sess.AccountID,
		region:    region,
	}
}

func (l *loadBalancerLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Marker:   pageToken(token),
		PageSize: aws.Int32(elbv2PageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.LoadBalancers))
	for _, lb := range out.LoadBalancers {
		nativeState := ""
		if lb.State != nil {
			nativeState = string(lb.State.Code)
		}
		record := models.ResourceRecord{
			Type:      models.ResourceLoadBalancer,
			ID:        aws.ToString(lb.LoadBalancerArn),
			Name:      aws.ToString(lb.LoadBalancerName),
			State:     mapLoadBalancerState(nativeState),
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"dns_name":     aws.ToString(lb.DNSName),
				"lb_type":      string(lb.Type),
				"scheme":       string(lb.Scheme),
				"native_state": nativeState,
			},
		}
		if v := aws.ToString(lb.VpcId); v != "" {
			record.References = append(record.References, models.Reference{Type: models.ResourceVPC, ID: v})
		}
		records = append(records, record)
	}
	return records, aws.ToString(out.NextMarker), nil
}

func mapLoadBalancerState(native string) models.ResourceState {
	switch elbv2types.LoadBalancerStateEnum(native) {
	case elbv2types.LoadBalancerStateEnumActive:
		return models.StateRunning
	case elbv2types.LoadBalancerStateEnumProvisioning:
		return models.StatePending
	case elbv2types.LoadBalancerStateEnumActiveImpaired, elbv2types.LoadBalancerStateEnumFailed:
		return models.StateError
	default:
		return models.StateUnknown
	}
}
