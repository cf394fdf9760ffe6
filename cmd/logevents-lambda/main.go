package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/ajitpratap0/logevents/internal/app"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"github.com/ajitpratap0/logevents/pkg/models"
)

func main() {
	a, err := app.Setup(app.Options{ConfigPath: os.Getenv("LOGEVENTS_CONFIG")})
	if err != nil {
		logger.Get().Fatal("failed to initialize", zap.Error(err))
	}
	// StartWithOptions never returns, so final shutdown runs from the SIGTERM
	// hook. Each invocation flushes on its own.
	lambda.StartWithOptions(newHandler(a), lambda.WithEnableSIGTERM(func() {
		_ = a.Shutdown(context.Background())
	}))
}

// newHandler adapts the connector to the Lambda runtime. Failures are
// returned as errors, which the runtime reports as {"errorMessage": ...}.
func newHandler(a *app.App) func(context.Context, models.Request) (*models.SyncBatch, error) {
	return func(ctx context.Context, req models.Request) (*models.SyncBatch, error) {
		defer func() {
			if err := a.Flush(ctx); err != nil {
				a.Logger.Warn("failed to flush telemetry", zap.Error(err))
			}
		}()

		if lc, ok := lambdacontext.FromContext(ctx); ok {
			ctx = logger.WithInvocation(ctx, lc.AwsRequestID, a.Function.Name())
		}
		req.Secrets = a.FillSecrets(req.Secrets)
		return a.Function.Handle(ctx, &req)
	}
}
