// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package clients

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

// s3API is the subset of the S3 client the bucket lister uses.
type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// s3BucketLister lists buckets for the whole account. ListBuckets is a
// global, unpaginated call: one page, issued from the pinned global region.
type s3BucketLister struct {
	api       s3API
	accountID string
}

func newS3BucketLister(sess *credentials.Session, region string) *s3BucketLister {
	return &s3BucketLister{
		api: s3.NewFromConfig(sess.Config(), func(o *s3.Options) {
			o.Region = region
		}),
		accountID: sess.AccountID,
	}
}

func (l *s3BucketLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	if token != "" {
		// Single-page listing: a non-empty token means the caller already
		// drained it.
		return nil, "", nil
	}

	out, err := l.api.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, "", err
	}

	records := make([]models.ResourceRecord, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		record := models.ResourceRecord{
			Type:      models.ResourceS3Bucket,
			ID:        aws.ToString(bucket.Name),
			Name:      aws.ToString(bucket.Name),
			State:     models.StateRunning,
			Region:    globalRegion,
			AccountID: l.accountID,
		}
		if bucket.CreationDate != nil {
			record.Metadata = map[string]string{
				"created_at": bucket.CreationDate.UTC().Format(time.RFC3339),
			}
		}
		records = append(records, record)
	}
	return records, "", nil
}
