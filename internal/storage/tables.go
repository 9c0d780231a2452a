package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// EnsureSnapshotsTable creates the snapshots table for local development.
// Old snapshots expire through the TTL attribute.
func EnsureSnapshotsTable(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	name := config.SnapshotsTable

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err == nil {
		logger.Info().Str("table", name).Msg("table already exists")
		return nil
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(attrDirectory), KeyType: dbtypes.KeyTypeHash},
			{AttributeName: aws.String(attrFetchedAt), KeyType: dbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(attrDirectory), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrFetchedAt), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, tableWaitTimeout); err != nil {
		return fmt.Errorf("table %s not ready: %w", name, err)
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(name),
		TimeToLiveSpecification: &dbtypes.TimeToLiveSpecification{
			AttributeName: aws.String(attrTTL),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		logger.Warn().Err(err).Str("table", name).Msg("failed to enable TTL")
	}

	logger.Info().Str("table", name).Msg("table created")
	return nil
}
