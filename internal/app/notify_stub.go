//go:build !linux

package app

import (
	"context"
	"sync"

	logx "sentinel/pkg/logx"
)

func notifyReady(context.Context, logx.Logger, *sync.WaitGroup) {}

func notifyStopping() {}
