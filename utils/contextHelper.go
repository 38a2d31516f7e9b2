package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/restaurant_backend/appctx"
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

func GetClientNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyClientName)
}

func SetClientNameInContext(ctx context.Context, clientName string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyClientName, clientName)
}
