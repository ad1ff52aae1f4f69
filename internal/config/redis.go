package config

// Redis backs distributed rate limiting and the availability response
// cache. If the server cannot be reached at startup the constructor returns
// nil and callers degrade: caching is skipped and rate limiting falls back
// to the in-process limiter.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedisClient instantiates a Redis client using environment variables:
//
//	REDIS_ADDR       host:port (default localhost:6379)
//	REDIS_HOST/PORT  take precedence over REDIS_ADDR when both are set
//	REDIS_PASSWORD   optional password
//	REDIS_DB         database number (default 0)
//	REDIS_TLS        enable TLS
//	REDIS_ENABLED    set to false to skip Redis entirely
func NewRedisClient() *redis.Client {
	if !envBool("REDIS_ENABLED", true) {
		return nil
	}
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	var tlsConf *tls.Config
	if envBool("REDIS_TLS", false) {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  envStr("REDIS_PASSWORD", ""),
		DB:        envInt("REDIS_DB", 0),
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unavailable; cache and distributed rate limit disabled")
		_ = client.Close()
		return nil
	}
	return client
}
