// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

const lambdaPageSize = 50

// lambdaAPI is the subset of the Lambda client the lister uses.
type lambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

type lambdaLister struct {
	api       lambdaAPI
	accountID string
	region    string
}

func newLambdaLister(sess *credentials.Session, region string) *lambdaLister {
	return &lambdaLister{
		api: lambda.NewFromConfig(sess.Config(), func(o *lambda.Options) {
			o.Region = region
		}),
		accountID: sess.AccountID,
		region:    region,
	}
}

func (l *lambdaLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	out, err := l.api.ListFunctions(ctx, &lambda.ListFunctionsInput{
		Marker:   pageToken(token),
		MaxItems: aws.Int32(lambdaPageSize),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.Functions))
	for _, fn := range out.Functions {
		record := models.ResourceRecord{
			Type:      models.ResourceLambda,
			ID:        aws.ToString(fn.FunctionArn),
			Name:      aws.ToString(fn.FunctionName),
			State:     mapLambdaState(fn.State),
			Region:    l.region,
			AccountID: l.accountID,
			Metadata: map[string]string{
				"runtime":      string(fn.Runtime),
				"memory_mb":    strconv.Itoa(int(aws.ToInt32(fn.MemorySize))),
				"timeout_s":    strconv.Itoa(int(aws.ToInt32(fn.Timeout))),
				"native_state": string(fn.State),
			},
		}
		if v := aws.ToString(fn.LastModified); v != "" {
			record.Metadata["last_modified"] = v
		}
		if fn.VpcConfig != nil {
			if v := aws.ToString(fn.VpcConfig.VpcId); v != "" {
				record.References = append(record.References, models.Reference{Type: models.ResourceVPC, ID: v})
			}
		}
		records = append(records, record)
	}
	return records, aws.ToString(out.NextMarker), nil
}

func mapLambdaState(state lambdatypes.State) models.ResourceState {
	switch state {
	case lambdatypes.StateActive:
		return models.StateRunning
	case lambdatypes.StatePending:
		return models.StatePending
	case lambdatypes.StateInactive:
		return models.StateStopped
	case lambdatypes.StateFailed:
		return models.StateError
	default:
		// ListFunctions omits State for functions that have never been
		// through the v2 state machine; they are runnable.
		return models.StateRunning
	}
}
