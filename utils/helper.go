package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
)

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// PageOffset converts 1-based page/size to a SQL offset, clamping bad input.
func PageOffset(page, size int) (limit, offset int) {
	if size <= 0 {
		size = config.SearchLimit
	}
	if page <= 0 {
		page = 1
	}
	return size, (page - 1) * size
}

// AdmissionLock obtains a short best-effort Redis lock for one shared
// resource (a table or an ingredient). It is an optimization only:
// correctness never depends on Redis, the row locks taken inside the
// admission transaction are the guarantee.
func AdmissionLock(ctx context.Context, resource string, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Redis not connected yet; fall through to DB locking.
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("admission:%s", resource)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain admission lock", resource, err)
		return nil, errors.New("could not obtain admission lock for " + resource)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining admission lock", resource, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
