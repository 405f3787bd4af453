package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
)

var _ = lambda.NewHandler

func main() {
	out, _ := handler(context.Background(), nil)
	fmt.Println(out)
}

func handler(ctx context.Context, event map[string]string) (string, error) {
	return "Hello from serverless.tf!!!", nil
}
