package main

import (
	"context"
)

type runtime struct{}

func (runtime) Start(h any) {}

var lambda runtime

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event map[string]string) (string, error) {
	return "Hello from serverless.tf!!!", nil
}
