package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/offerhub-api/internal/config"
)

// SNSSender is the native per-platform relay: it registers the device token
// against the platform application and publishes with platform-specific
// routing hints. Platforms without a configured application ARN are not
// supported and fall through to the universal relay.
type SNSSender struct {
	client       *sns.Client
	platformARNs map[string]string
}

func NewSNSSender(cfg *config.Config) (*SNSSender, error) {
	if len(cfg.SNSPlatformARNs) == 0 {
		return nil, errors.New("no SNS platform applications configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &SNSSender{
		client:       sns.NewFromConfig(awsCfg),
		platformARNs: cfg.SNSPlatformARNs,
	}, nil
}

func (s *SNSSender) Supports(platform string) bool {
	_, ok := s.platformARNs[platform]
	return ok
}

func (s *SNSSender) Send(ctx context.Context, msg Message) (Outcome, error) {
	appARN, ok := s.platformARNs[msg.Platform]
	if !ok {
		return OutcomePermanent, fmt.Errorf("platform %s not configured", msg.Platform)
	}

	// CreatePlatformEndpoint is idempotent for an unchanged token.
	ep, err := s.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(appARN),
		Token:                  aws.String(msg.Token),
	})
	if err != nil {
		return classifySNSError(err), err
	}

	wire, err := snsMessage(msg)
	if err != nil {
		return OutcomePermanent, err
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        ep.EndpointArn,
		Message:          aws.String(wire),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return classifySNSError(err), err
	}
	return OutcomeDelivered, nil
}

// snsMessage builds the per-platform message-structure JSON:
// {token-routed notification {title, body} plus the data map}.
func snsMessage(msg Message) (string, error) {
	gcm, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         msg.Data,
		"android":      map[string]string{"channel_id": msg.ChannelID},
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]interface{}{
		"aps": map[string]interface{}{
			"alert": map[string]string{"title": msg.Title, "body": msg.Body},
			"sound": msg.Sound,
		},
		"data": msg.Data,
	})
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"default": msg.Body,
		"GCM":     string(gcm),
		"APNS":    string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}

func classifySNSError(err error) Outcome {
	var (
		endpointDisabled *snstypes.EndpointDisabledException
		appDisabled      *snstypes.PlatformApplicationDisabledException
		invalidParam     *snstypes.InvalidParameterException
		throttled        *snstypes.ThrottledException
		internal         *snstypes.InternalErrorException
	)
	switch {
	case errors.As(err, &endpointDisabled):
		return OutcomeInvalidToken
	case errors.As(err, &invalidParam):
		// A malformed or revoked token surfaces as an invalid Token parameter.
		return OutcomeInvalidToken
	case errors.As(err, &throttled), errors.As(err, &internal):
		return OutcomeTransient
	case errors.As(err, &appDisabled):
		return OutcomePermanent
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTransient
	default:
		return OutcomeTransient
	}
}
