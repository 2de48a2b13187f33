// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

// ec2PageSize bounds one DescribeInstances/DescribeVpcs/... page.
const ec2PageSize = 100

// ec2API is the subset of the EC2 client the listers use.
type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

func newEC2Client(sess *credentials.Session, region string) *ec2.Client {
	return ec2.NewFromConfig(sess.Config(), func(o *ec2.Options) {
		o.Region = region
	})
}

// pageToken converts the wire representation: an empty string means no
// token, the SDK wants nil.
func pageToken(token string) *string {
	if token == "" {
		return nil
	}
	return aws.String(token)
}

// tagName extracts the Name tag, which EC2 uses in place of a real name
// field.
func tagName(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

type ec2InstanceLister struct {
	api       ec2API
	accountID string
	region    string
}

func newEC2InstanceLister(sess *credentials.Session, region string) *ec2InstanceLister {
	return &ec2InstanceLister{api: newEC2Client(sess, region), accountID: sess.AccountID, region: region}
}

func (l *ec2InstanceLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		NextToken:  pageToken(token),
		MaxResults: aws.Int32(ec2PageSize),
	})
	if err != nil {
		return nil, "", err
	}

	var records []models.ResourceRecord
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			records = append(records, l.toRecord(instance))
		}
	}
	return records, aws.ToString(out.NextToken), nil
}

func (l *ec2InstanceLister) toRecord(instance ec2types.Instance) models.ResourceRecord {
	nativeState := ""
	if instance.State != nil {
		nativeState = string(instance.State.Name)
	}

	record := models.ResourceRecord{
		Type:      models.ResourceEC2Instance,
		ID:        aws.ToString(instance.InstanceId),
		Name:      tagName(instance.Tags),
		State:     mapInstanceState(nativeState),
		Region:    l.region,
		AccountID: l.accountID,
		Metadata: map[string]string{
			"instance_type": string(instance.InstanceType),
			"native_state":  nativeState,
		},
	}
	if instance.Placement != nil {
		record.Metadata["availability_zone"] = aws.ToString(instance.Placement.AvailabilityZone)
	}
	if v := aws.ToString(instance.PrivateIpAddress); v != "" {
		record.Metadata["private_ip"] = v
	}
	if v := aws.ToString(instance.PublicIpAddress); v != "" {
		record.Metadata["public_ip"] = v
	}
	if v := aws.ToString(instance.VpcId); v != "" {
		record.References = append(record.References, models.Reference{Type: models.ResourceVPC, ID: v})
	}
	if v := aws.ToString(instance.SubnetId); v != "" {
		record.References = append(record.References, models.Reference{Type: models.ResourceSubnet, ID: v})
	}
	return record
}

func mapInstanceState(native string) models.ResourceState {
	switch native {
	case "running":
		return models.StateRunning
	case "stopped", "stopping":
		return models.StateStopped
	case "pending":
		return models.StatePending
	case "shutting-down", "terminated":
		return models.StateDeleting
	default:
		return models.StateUnknown
	}
}

type vpcLister struct {
	api       ec2API
	accountID string
	region    string
}

func newVPCLister(sess *credentials.Session, region string) *vpcLister {
	return &vpcLister{api: newEC2Client(sess, region), accountID: sess.AccountID, region: region}
}

func (l *vpcLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		NextToken:  pageToken(token),
		MaxResults: aws.Int32(ec2PageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.Vpcs))
	for _, vpc := range out.Vpcs {
		state := models.StateRunning
		if vpc.State == ec2types.VpcStatePending {
			state = models.StatePending
		}
		records = append(records, models.ResourceRecord{
			Type:      models.ResourceVPC,
			ID:        aws.ToString(vpc.VpcId),
			Name:      tagName(vpc.Tags),
			State:     state,
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"cidr_block": aws.ToString(vpc.CidrBlock),
				"is_default": strconv.FormatBool(aws.ToBool(vpc.IsDefault)),
			},
		})
	}
	return records, aws.ToString(out.NextToken), nil
}

type subnetLister struct {
	api       ec2API
	accountID string
	region    string
}

func newSubnetLister(sess *credentials.Session, region string) *subnetLister {
	return &subnetLister{api: newEC2Client(sess, region), accountID: sess.AccountID, region: region}
}

func (l *subnetLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		NextToken:  pageToken(token),
		MaxResults: aws.Int32(ec2PageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.Subnets))
	for _, subnet := range out.Subnets {
		state := models.StateRunning
		if subnet.State == ec2types.SubnetStatePending {
			state = models.StatePending
		}
		record := models.ResourceRecord{
			Type:      models.ResourceSubnet,
			ID:        aws.ToString(subnet.SubnetId),
			Name:      tagName(subnet.Tags),
			State:     state,
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"cidr_block":        aws.ToString(subnet.CidrBlock),
				"availability_zone": aws.ToString(subnet.AvailabilityZone),
				"available_ips":     strconv.Itoa(int(aws.ToInt32(subnet.AvailableIpAddressCount))),
			},
		}
		if v := aws.ToString(subnet.VpcId); v != "" {
			record.References = append(record.References, models.Reference{Type: models.ResourceVPC, ID: v})
		}
		records = append(records, record)
	}
	return records, aws.ToString(out.NextToken), nil
}

type volumeLister struct {
	api       ec2API
	accountID string
	region    string
}

func newVolumeLister(sess *credentials.Session, region string) *volumeLister {
	return &volumeLister{api: newEC2Client(sess, region), accountID: sess.AccountID, region: region}
}

func (l *volumeLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		NextToken:  pageToken(token),
		MaxResults: aws.Int32(ec2PageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.Volumes))
	for _, volume := range out.Volumes {
		record := models.ResourceRecord{
			Type:      models.ResourceEBSVolume,
			ID:        aws.ToString(volume.VolumeId),
			Name:      tagName(volume.Tags),
			State:     mapVolumeState(volume.State),
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"volume_type":       string(volume.VolumeType),
				"size_gib":          strconv.Itoa(int(aws.ToInt32(volume.Size))),
				"availability_zone": aws.ToString(volume.AvailabilityZone),
				"native_state":      string(volume.State),
			},
		}
		for _, attachment := range volume.Attachments {
			if v := aws.ToString(attachment.InstanceId); v != "" {
				record.References = append(record.References, models.Reference{Type: models.ResourceEC2Instance, ID: v})
			}
		}
		records = append(records, record)
	}
	return records, aws.ToString(out.NextToken), nil
}

func mapVolumeState(state ec2types.VolumeState) models.ResourceState {
	switch state {
	case ec2types.VolumeStateInUse, ec2types.VolumeStateAvailable:
		return models.StateRunning
	case ec2types.VolumeStateCreating:
		return models.StatePending
	case ec2types.VolumeStateDeleting, ec2types.VolumeStateDeleted:
		return models.StateDeleting
	case ec2types.VolumeStateError:
		return models.StateError
	default:
		return models.StateUnknown
	}
}
