package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event map[string]string) (string, error) {
	fmt.Printf("EVENT TYPE: %T\n", event)
	return "Hello from serverless.tf!!!", nil
}
