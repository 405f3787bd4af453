package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/serverlesstf/greeter"
	"github.com/serverlesstf/greeter/internal/config"
	"github.com/serverlesstf/greeter/internal/logger"
)

func main() {
	log := logger.New("greeter.runtime")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Configure(cfg.LogFormat, cfg.LogLevel); err != nil {
		log.Fatal(err)
	}
	format := greeter.ParseLogFormat(cfg.LogFormat)
	h := greeter.NewHandler(greeter.WithFallbackLogger(func(ctx context.Context) greeter.Logger {
		return greeter.LoggerForInvocation(ctx, os.Stdout, format)
	}))
	log.WithField("function", cfg.FunctionName).Debug("starting handler")
	lambda.Start(h.Handle)
}
