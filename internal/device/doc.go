/*
Package device defines the vocabulary shared by the queue device core.

# Overview

The device exposes one bounded FIFO byte queue to many independent callers.
How callers are isolated from one another depends on the sharing Mode that is
in effect when a handle is opened:

  - Shared: every handle operates on one common queue
  - Exclusive: the common queue, but at most one open handle at a time
  - PerHandle: every handle gets its own private queue

This package holds the Mode type, the control command codes, the capacity
constant and the error taxonomy. The data structure lives in device/queue and
the handle lifecycle in device/session.

# Errors

All failures are reported with the sentinel errors below. Callers match them
with errors.Is; Code maps an error to a short stable kind for logs, metric
labels and wire responses.
*/
package device
