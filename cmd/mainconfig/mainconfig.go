package mainconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	appconfig "github.com/wolfman30/guestpilot/internal/config"
)

// emulatedServices are redirected by AWS_ENDPOINT_OVERRIDE. Bedrock has no
// LocalStack emulator, so it always resolves to the real endpoint.
var emulatedServices = map[string]bool{
	dynamodb.ServiceID: true,
	sesv2.ServiceID:    true,
}

// LoadAWSConfig builds the SDK config shared by the API server and the
// webhook Lambda.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	if strings.TrimSpace(cfg.AWSRegion) == "" {
		return aws.Config{}, errors.New("mainconfig: AWS_REGION is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = emulatorResolver(endpoint, cfg.AWSRegion)
	}
	return awsCfg, nil
}

// loadOptions pins the region and uses static keys only when both halves
// are set; otherwise the default chain (Lambda role, profile) applies.
func loadOptions(cfg *appconfig.Config) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	id, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}
	return opts
}

func emulatorResolver(url, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		if !emulatedServices[service] {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{URL: url, PartitionID: "aws", SigningRegion: region}, nil
	})
}
