/*
Package monitoring provides Prometheus metrics for the queue device.

# Overview

Metrics are registered on a private prometheus.Registry per collector, so a
process (or a test) can create as many collectors as it needs.

# Metrics

- queuedev_opens_total{mode,result}: open attempts
- queuedev_closes_total{mode}: handles closed
- queuedev_handles_open, queuedev_private_queues: live handles and private queues
- queuedev_shared_queue_bytes: bytes held by the shared queue
- queuedev_bytes_{written,read,discarded}_total: data volume
- queuedev_operation_errors_total{op,kind}: failures by device error kind
- queuedev_http_*: adapter request count and latency

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
