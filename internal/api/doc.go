// Package api implements the HTTP REST API and dashboard WebSocket for
// LeafBox Core.
//
// This package provides:
//   - REST endpoints for devices, plants, readings and accounts
//   - A WebSocket hub pushing readings, calibration results, config pushes
//     and host status to every connected dashboard
//   - Bearer token authentication on mutating routes
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Configuration Sync
//
// Editing a device's slots or a plant's thresholds stores the change and
// then pushes fresh configuration to the affected devices through the
// ConfigPusher. A failed push is logged; the device picks the change up
// on its next config request.
//
// # Graceful Degradation
//
// The server operates without MQTT: reads, edits and dashboards work, only
// pushes and forwarded commands are skipped.
package api
