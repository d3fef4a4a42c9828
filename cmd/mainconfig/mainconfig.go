package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
)

// LoadAWSConfig builds the SDK config shared by the API, the reaper lambda
// and the table provisioner. Static keys are used only when both halves are
// set; otherwise the default credential chain applies.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoints := serviceEndpoints(cfg); len(endpoints) > 0 {
		awsCfg.EndpointResolverWithOptions = endpointResolver(endpoints, cfg.AWSRegion)
	}
	return awsCfg, nil
}

// serviceEndpoints maps SDK service ids to their configured endpoints.
// Services left empty resolve to AWS.
func serviceEndpoints(cfg *appconfig.Config) map[string]string {
	endpoints := map[string]string{}
	for service, name := range map[string]string{dynamodb.ServiceID: "dynamodb", s3.ServiceID: "s3"} {
		if url := strings.TrimSpace(cfg.Endpoint(name)); url != "" {
			endpoints[service] = url
		}
	}
	return endpoints
}

func endpointResolver(endpoints map[string]string, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		url, ok := endpoints[service]
		if !ok {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{
			URL:               url,
			PartitionID:       "aws",
			SigningRegion:     region,
			HostnameImmutable: service == s3.ServiceID,
		}, nil
	})
}
