package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.Start(handler)
}

// A single return value must be an error.
func handler(ctx context.Context, event map[string]string) string {
	return "Hello from serverless.tf!!!"
}
