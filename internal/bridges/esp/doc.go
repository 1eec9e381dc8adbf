// Package esp bridges watering controllers on MQTT to the rest of LeafBox.
//
// Devices publish under a single topic root (default "esp"):
//
//	esp/status                   {"mac": "...", "online": true}
//	esp/<id>/moisture            "1830"   (id is the plant ID)
//	esp/<id>/temperature         "21.5"   (id is the device ID)
//	esp/device/config/request    "<mac>"
//	esp/device/calibration       {"mac": "...", "socket": 2, "values": [...]}
//
// Older firmware prefixes readings with its MAC: esp/<mac>/<id>/<metric>.
//
// The server publishes on esp/device/command ({type, mac, id, data}) and
// esp/device/calibration ({type: "calibration", mac, data}). Both topics sit
// under the subscribed wildcard, so the router recognises and skips its own
// traffic.
//
// ParseTopic classifies a topic into a Topic value; Router dispatches on its
// Kind. Bridge owns the subscription and the outbound publishers.
package esp
