package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

const contextCacheKey = "portalCacheKey"

// subjectMiddleware loads the token user and the entities they manage.
// It must run after the JWT middleware.
func subjectMiddleware(svc user.Service, resolver perms.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := loadUser(ctx, svc, claims)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			s, err := resolver.Resolve(ctx.Request().Context(), usr)
			if err != nil {
				return errors.Wrap(err, "resolving subject")
			}
			ctx.Set(contextSubjectKey, s)
			return next(ctx)
		}
	}
}

// accessMiddleware lets through the users allowed to browse partnerships.
func accessMiddleware() echo.MiddlewareFunc {
	return permMiddleware(perms.CanAccess)
}

func permMiddleware(allowed func(perms.Subject) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			s, err := getContextSubject(ctx)
			if err != nil {
				return err
			}
			if !allowed(s) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// purgePortalCacheMiddleware drops the cached portal responses after any successful write.
func purgePortalCacheMiddleware(cache core.Cache, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			err := next(ctx)
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return err
			}
			if err != nil || ctx.Response().Status >= http.StatusBadRequest || strings.HasPrefix(ctx.Path(), "/v1/users") {
				return err
			}
			if pErr := cache.DeletePrefix(ctx.Request().Context(), core.PortalCachePrefix); pErr != nil {
				logger.Error("purging portal cache", pErr)
			}
			return nil
		}
	}
}

// portalCacheKey is the request path with its sorted query string.
func portalCacheKey(r *http.Request) string {
	key := core.PortalCachePrefix + r.URL.Path
	if q := r.URL.Query(); len(q) > 0 {
		key += "?" + q.Encode()
	}
	return key
}

// portalCacheMiddleware answers GET requests from the cache, and caches the successful responses for ttl.
func portalCacheMiddleware(cache core.Cache, ttl time.Duration, logger core.Logger) echo.MiddlewareFunc {
	store := middleware.BodyDump(func(ctx echo.Context, _, body []byte) {
		key, ok := ctx.Get(contextCacheKey).(string)
		if !ok || ctx.Response().Status != http.StatusOK {
			return
		}
		if err := cache.Set(ctx.Request().Context(), key, body, ttl); err != nil {
			logger.Warn("caching portal response", err)
		}
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		storing := store(next)
		return func(ctx echo.Context) error {
			if ctx.Request().Method != http.MethodGet {
				return next(ctx)
			}
			key := portalCacheKey(ctx.Request())
			data, err := cache.Get(ctx.Request().Context(), key)
			if err == nil {
				return ctx.JSONBlob(http.StatusOK, data)
			}
			if errors.Cause(err) != core.ErrCacheMiss {
				logger.Warn("reading portal cache", err)
			}
			ctx.Set(contextCacheKey, key)
			return storing(ctx)
		}
	}
}
