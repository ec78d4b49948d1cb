package main

import (
	"context"
	stdlog "log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jlefonde/crc_infra/cloudfront_keypair/internal/config"
	"github.com/jlefonde/crc_infra/cloudfront_keypair/internal/keypair"
	"github.com/jlefonde/crc_infra/cloudfront_keypair/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("failed to load configuration: %v", err)
	}

	logger := log.NewLogger(cfg)

	handler, err := keypair.NewHandler(context.TODO(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create handler")
	}

	logger.Info().
		Str("private_key_source", string(cfg.PrivateKeySource)).
		Str("invocation", string(cfg.Invocation)).
		Msg("Starting CloudFront key pair handler")

	switch cfg.Invocation {
	case config.InvocationSNS:
		lambda.Start(handler.HandleSNSEvent)
	case config.InvocationProvider:
		lambda.Start(handler.HandleProviderEvent)
	default:
		lambda.Start(handler.HandleEvent)
	}
}
