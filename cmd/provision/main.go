package main

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/joho/godotenv"

	"github.com/wolfman30/kalos-marketplace/cmd/mainconfig"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

type tableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

func availabilityTable(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("professionalId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("date"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("professionalId"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("date"), KeyType: types.KeyTypeRange},
		},
	}
}

func bookingsTable(name string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("bookingId"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("bookingId"), KeyType: types.KeyTypeHash},
		},
	}
}

// provision creates every table that does not exist yet.
func provision(ctx context.Context, client tableAPI, cfg *appconfig.Config, logger *logging.Logger) error {
	for _, input := range []*dynamodb.CreateTableInput{
		availabilityTable(cfg.AvailabilityTable),
		bookingsTable(cfg.BookingsTable),
	} {
		name := aws.ToString(input.TableName)
		_, err := client.CreateTable(ctx, input)
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			logger.Info("table created", "table", name)
		case errors.As(err, &inUse):
			logger.Info("table already exists", "table", name)
		default:
			return err
		}
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	if err := provision(ctx, dynamodb.NewFromConfig(awsCfg), cfg, logger); err != nil {
		logger.Error("provisioning failed", "error", err)
		os.Exit(1)
	}
}
