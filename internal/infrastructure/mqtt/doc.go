// Package mqtt provides the MQTT client used to mirror the passing feed
// to a broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) so consumers see the bridge go offline
//   - Connection health monitoring
//
// # Topics
//
// All topics hang off the configured prefix (default "rrconverter"):
//
//	rrconverter/passing/{transponder}   one message per passing
//	rrconverter/status                  decoder connectivity (retained)
//	rrconverter/bridge                  bridge online/offline (retained, LWT)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Set the password via RRCONVERTER_MQTT_PASSWORD rather than the config file
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Publish(topics.Passing("1234567"), payload, 0, false)
package mqtt
