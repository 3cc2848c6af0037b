package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowbus/transport"
	"github.com/drblury/flowbus/transport/transporttest"
)

type capturedBuild struct {
	accountID string
	region    string
	pubCfg    sns.PublisherConfig
	subCfg    sns.SubscriberConfig
	sqsCfg    sqs.SubscriberConfig
	pub       *transporttest.Publisher
	sub       *transporttest.Subscriber
}

func stubFactories(t *testing.T, loadedRegion string) *capturedBuild {
	t.Helper()
	originalLoader, originalResolver := DefaultConfigLoader, TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	captured := &capturedBuild{pub: &transporttest.Publisher{}, sub: &transporttest.Subscriber{}}
	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: loadedRegion}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		captured.accountID, captured.region = accountID, region
		return sns.NewGenerateArnTopicResolver(accountID, region)
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		captured.pubCfg = cfg
		return captured.pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		captured.subCfg, captured.sqsCfg = cfg, sqsCfg
		return captured.sub, nil
	}
	return captured
}

func TestRegisteredOnImport(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).Durable)
}

func TestBuild(t *testing.T) {
	t.Run("uses the configured account and region", func(t *testing.T) {
		captured := stubFactories(t, "us-east-1")

		tr, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Region: "eu-west-1", AccountID: "123456789012"},
		}, watermill.NopLogger{})
		require.NoError(t, err)

		assert.Same(t, captured.pub, tr.Publisher)
		assert.Same(t, captured.sub, tr.Subscriber)
		assert.Equal(t, "123456789012", captured.accountID)
		assert.Equal(t, "eu-west-1", captured.region)
		assert.Equal(t, "eu-west-1", captured.pubCfg.AWSConfig.Region)
		assert.Empty(t, captured.pubCfg.OptFns)
		assert.Empty(t, captured.sqsCfg.OptFns)
	})

	t.Run("falls back to the loaded region", func(t *testing.T) {
		captured := stubFactories(t, "us-east-2")

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{AccountID: "123456789012"},
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Equal(t, "us-east-2", captured.region)
	})

	t.Run("custom endpoint overrides the resolvers", func(t *testing.T) {
		captured := stubFactories(t, "us-east-1")

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Endpoint: "http://localhost:4566"},
		}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Equal(t, localstackAccountID, captured.accountID)
		assert.Len(t, captured.pubCfg.OptFns, 1)
		assert.Len(t, captured.subCfg.OptFns, 1)
		assert.Len(t, captured.sqsCfg.OptFns, 1)
	})

	t.Run("queue names follow the topic", func(t *testing.T) {
		captured := stubFactories(t, "us-east-1")

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Region: "us-east-1", AccountID: "123456789012"},
		}, watermill.NopLogger{})
		require.NoError(t, err)

		name, err := captured.subCfg.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-east-1:123456789012:orders")
		require.NoError(t, err)
		assert.Equal(t, "orders", name)
	})

	t.Run("rejects a relative endpoint", func(t *testing.T) {
		stubFactories(t, "us-east-1")

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Endpoint: "localhost"},
		}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "absolute url")
	})

	t.Run("config loader failure", func(t *testing.T) {
		stubFactories(t, "us-east-1")
		DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("no credentials")
		}

		_, err := Build(context.Background(), transport.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "no credentials")
	})

	t.Run("publisher failure", func(t *testing.T) {
		stubFactories(t, "us-east-1")
		PublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Region: "us-east-1", AccountID: "123456789012"},
		}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber failure closes the publisher", func(t *testing.T) {
		captured := stubFactories(t, "us-east-1")
		SubscriberFactory = func(sns.SubscriberConfig, sqs.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), transport.Config{
			AWS: transport.AWSConfig{Region: "us-east-1", AccountID: "123456789012"},
		}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, captured.pub.Closed)
	})
}

func TestResolveAccountAndRegion(t *testing.T) {
	tests := []struct {
		name        string
		cfg         transport.AWSConfig
		wantAccount string
		wantRegion  string
	}{
		{"config values", transport.AWSConfig{AccountID: "123456789012", Region: "us-west-2"}, "123456789012", "us-west-2"},
		{"fallback region", transport.AWSConfig{AccountID: "123456789012"}, "123456789012", "us-east-1"},
		{"quoted account id", transport.AWSConfig{AccountID: `"123456789012"`}, "123456789012", "us-east-1"},
		{"localstack without account", transport.AWSConfig{Endpoint: "http://localhost:4566"}, localstackAccountID, "us-east-1"},
		{"localstack with invalid account", transport.AWSConfig{Endpoint: "http://localhost:4566", AccountID: "42"}, localstackAccountID, "us-east-1"},
		{"invalid account without endpoint is kept", transport.AWSConfig{AccountID: "42"}, "42", "us-east-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, region := resolveAccountAndRegion(tt.cfg, watermill.NopLogger{}, "us-east-1")
			assert.Equal(t, tt.wantAccount, account)
			assert.Equal(t, tt.wantRegion, region)
		})
	}
}

func TestStaticCredentialsProvider(t *testing.T) {
	creds, err := staticCredentialsProvider("key", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
