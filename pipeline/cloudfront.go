package pipeline

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
)

// CDN invalidates cached paths at the edge after a publish.
type CDN interface {
	Invalidate(ctx context.Context, distributionID string, paths []string) error
}

// CloudFrontCDN implements CDN on AWS CloudFront.
type CloudFrontCDN struct {
	client *cloudfront.Client
}

func NewCloudFrontCDN(ctx context.Context, region string) (*CloudFrontCDN, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &CloudFrontCDN{client: cloudfront.NewFromConfig(cfg)}, nil
}

func (c *CloudFrontCDN) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	if len(paths) == 0 {
		paths = []string{"/*"}
	}
	items := make([]string, len(paths))
	copy(items, paths)
	quantity := int32(len(items))
	callerRef := fmt.Sprintf("deployctl-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])

	_, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: &distributionID,
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: &callerRef,
			Paths: &types.Paths{
				Quantity: &quantity,
				Items:    items,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create invalidation for %s: %w", distributionID, err)
	}
	return nil
}
