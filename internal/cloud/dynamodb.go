package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBClient mirrors every stored measurement into a DynamoDB table
// keyed by sensorId and timestamp (unix milliseconds).
type DynamoDBClient struct {
	svc   dynamoAPI
	table string
}

func NewDynamoDBClient(cfg aws.Config, table string) *DynamoDBClient {
	return &DynamoDBClient{svc: dynamodb.NewFromConfig(cfg), table: table}
}

// MeasurementItem represents the DynamoDB structure for a pressure measurement
type MeasurementItem struct {
	SensorID      int64   `dynamodbav:"sensorId"`
	Timestamp     int64   `dynamodbav:"timestamp"`
	MeasurementID int64   `dynamodbav:"measurementId"`
	MacAddress    string  `dynamodbav:"macAddress"`
	SensorName    string  `dynamodbav:"sensorName"`
	Pressure      float64 `dynamodbav:"pressure"`
}

// Record stores a measurement in DynamoDB.
func (c *DynamoDBClient) Record(ctx context.Context, s domain.Sensor, m domain.Measurement) error {
	item, err := attributevalue.MarshalMap(MeasurementItem{
		SensorID:      s.ID,
		Timestamp:     m.CreatedAt.UnixMilli(),
		MeasurementID: m.ID,
		MacAddress:    s.MacAddress,
		SensorName:    s.Name,
		Pressure:      m.Pressure,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}

	_, err = c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}

	return nil
}
