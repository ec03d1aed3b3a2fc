package cloud

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

type fakeS3 struct{ inputs []*s3.PutObjectInput }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

type fakeDynamo struct {
	inputs []*dynamodb.PutItemInput
	err    error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &dynamodb.PutItemOutput{}, nil
}

func TestSNSClient_SendLowBatteryAlert(t *testing.T) {
	fake := &fakeSNS{}
	c := &SNSClient{svc: fake, topicArn: "arn:aws:sns:eu-west-1:123:alerts", now: func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}}
	s := domain.Sensor{ID: 4, MacAddress: "AA:BB", Name: "Sensor AA:BB", BatteryLevel: 0.15}

	require.NoError(t, c.SendLowBatteryAlert(context.Background(), s, 0.2))

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:alerts", aws.ToString(in.TopicArn))
	assert.Equal(t, "Sensor Alert: Low battery on Sensor AA:BB", aws.ToString(in.Subject))
	assert.Contains(t, aws.ToString(in.Message), "Battery: 15%")
	assert.Contains(t, aws.ToString(in.Message), "Threshold: 20%")
	assert.Contains(t, aws.ToString(in.Message), "2026-01-01T12:00:00Z")
}

func TestSNSClient_PublishError(t *testing.T) {
	c := &SNSClient{svc: &fakeSNS{err: errors.New("throttled")}, now: time.Now}

	err := c.SendAlert(context.Background(), "s", "m")

	assert.ErrorContains(t, err, "throttled")
}

func TestS3Client_UploadDataFile(t *testing.T) {
	fake := &fakeS3{}
	c := &S3Client{svc: fake, bucket: "telemetry-archive"}

	require.NoError(t, c.UploadDataFile(context.Background(), "measurements/a.json", []byte(`[]`)))

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "telemetry-archive", aws.ToString(in.Bucket))
	assert.Equal(t, "measurements/a.json", aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	body, err := io.ReadAll(in.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestDynamoDBClient_Record(t *testing.T) {
	fake := &fakeDynamo{}
	c := &DynamoDBClient{svc: fake, table: "Measurements"}
	at := time.Date(2026, 3, 3, 3, 3, 3, 0, time.UTC)

	err := c.Record(context.Background(),
		domain.Sensor{ID: 9, MacAddress: "AA", Name: "Sensor AA"},
		domain.Measurement{ID: 77, SensorID: 9, Pressure: 1012.5, CreatedAt: at})

	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "Measurements", aws.ToString(fake.inputs[0].TableName))
	var item MeasurementItem
	require.NoError(t, attributevalue.UnmarshalMap(fake.inputs[0].Item, &item))
	assert.Equal(t, MeasurementItem{
		SensorID:      9,
		Timestamp:     at.UnixMilli(),
		MeasurementID: 77,
		MacAddress:    "AA",
		SensorName:    "Sensor AA",
		Pressure:      1012.5,
	}, item)
}

func TestDynamoDBClient_PutError(t *testing.T) {
	c := &DynamoDBClient{svc: &fakeDynamo{err: errors.New("ResourceNotFoundException")}, table: "Measurements"}

	err := c.Record(context.Background(), domain.Sensor{ID: 1}, domain.Measurement{CreatedAt: time.Now()})

	assert.ErrorContains(t, err, "failed to put item in DynamoDB")
}
