// Package plant stores plants and their moisture readings.
//
// A plant carries display metadata and the watering parameters a device
// needs for the slot it is assigned to: moisture thresholds, sampling
// cadence and pump run time. Readings are append-only; they are removed
// only together with their plant, inside one transaction.
//
// Timestamps are stored in database.TimestampLayout so "latest reading"
// queries can use MAX(timestamp) directly.
package plant
