package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"rotationsync/internal/app"
	"rotationsync/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("build: %v", err)
	}

	lambda.Start(a.API.HandleAPIGateway)
}
