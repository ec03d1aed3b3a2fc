package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes operator alerts to one topic.
type SNSClient struct {
	svc      snsAPI
	topicArn string
	now      func() time.Time
}

func NewSNSClient(cfg aws.Config, topicArn string) *SNSClient {
	return &SNSClient{svc: sns.NewFromConfig(cfg), topicArn: topicArn, now: time.Now}
}

// SendAlert sends an alert notification via SNS
func (c *SNSClient) SendAlert(ctx context.Context, subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}

	result, err := c.svc.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	log.Info().Str("message_id", aws.ToString(result.MessageId)).Str("subject", subject).Msg("alert sent")
	return nil
}

// SendLowBatteryAlert tells operators a sensor's battery dropped below threshold.
func (c *SNSClient) SendLowBatteryAlert(ctx context.Context, s domain.Sensor, threshold float64) error {
	subject := fmt.Sprintf("Sensor Alert: Low battery on %s", s.Name)
	message := fmt.Sprintf(
		"Low Battery Alert\n\n"+
			"Sensor: %s (id %d)\n"+
			"MAC: %s\n"+
			"Battery: %.0f%%\n"+
			"Threshold: %.0f%%\n"+
			"Location: %.4f, %.4f\n"+
			"Time: %s\n\n"+
			"Please replace or recharge the battery.",
		s.Name,
		s.ID,
		s.MacAddress,
		s.BatteryLevel*100,
		threshold*100,
		s.Latitude,
		s.Longitude,
		c.now().UTC().Format(time.RFC3339),
	)

	return c.SendAlert(ctx, subject, message)
}
