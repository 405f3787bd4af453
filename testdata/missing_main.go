package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
)

func init() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event map[string]string) (string, error) {
	return "Hello from serverless.tf!!!", nil
}
