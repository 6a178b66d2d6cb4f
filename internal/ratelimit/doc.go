// Package ratelimit throttles credential and subscription endpoints per client.
//
// Two backends implement Limiter. MemoryLimiter keeps windows in-process and
// is the default. RedisLimiter shares counters across gateway replicas and
// lets requests through if Redis misbehaves.
package ratelimit
