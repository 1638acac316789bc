package testutil

import (
	"context"

	"github.com/tutorbill/tutorbill/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.SetTenantID(ctx, types.DefaultTenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
