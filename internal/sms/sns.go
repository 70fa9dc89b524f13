package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// SNSSender publishes direct-to-phone SMS through AWS SNS.
type SNSSender struct {
	sns    snsPublisher
	logger *zap.Logger
}

// NewSNSSender loads the default AWS credential chain for region.
func NewSNSSender(ctx context.Context, region string, logger *zap.Logger) (*SNSSender, error) {
	if region == "" {
		region = "ap-south-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SNSSender{sns: awssns.NewFromConfig(cfg), logger: logger}, nil
}

// Send publishes body to the number.  A non-numeric from is used as the
// alphanumeric sender id; phone-number senders are left to the account default.
func (s *SNSSender) Send(ctx context.Context, body, from, to string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if from != "" && !strings.HasPrefix(from, "+") {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(from),
		}
	}
	out, err := s.sns.Publish(ctx, &awssns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	s.logger.Debug("sms sent", zap.String("to", to), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
