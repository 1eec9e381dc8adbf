// Package mqtt provides MQTT client connectivity for LeafBox Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Wildcard subscriptions restored after reconnect
//   - A retained presence topic with Last Will for offline detection
//
// ESP devices and the server only ever talk through the broker:
//
//	ESP devices ↔ MQTT Broker ↔ LeafBox Core ↔ dashboards
//
// Received messages are delivered as Message values carrying the retained
// flag, so consumers can ignore replayed state.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().All(), 1, router.HandleMessage)
package mqtt
