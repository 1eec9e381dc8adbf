// Package influxdb mirrors sensor readings into InfluxDB.
//
// It wraps influxdb-client-go v2 with the same connect, health check and
// close lifecycle as the other infrastructure clients. The mirror is
// optional: when influxdb.enabled is false Connect returns ErrDisabled and
// callers keep a nil *Client, whose write methods are no-ops.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMoisture(plantID, 1830, time.Now())
package influxdb
