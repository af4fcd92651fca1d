//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/propfront/propfront/internal/app"
)

func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(ConfigSet, StorageSet, SessionSet, HTTPSet)
	return nil, nil, nil
}
