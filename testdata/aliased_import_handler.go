package main

import (
	runtime "github.com/aws/aws-lambda-go/lambda"
)

func main() {
	runtime.StartWithOptions(handler)
}

func handler(event map[string]string) (string, error) {
	return "Hello from serverless.tf!!!", nil
}
