package hardware

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConn is the slice of the paho client the transport needs.
// It exists so tests can stand in for a broker.
type MQTTConn interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

// DefaultMQTTConn wraps the real paho MQTT client.
type DefaultMQTTConn struct {
	client mqtt.Client
}

func (d *DefaultMQTTConn) Connect() mqtt.Token {
	return d.client.Connect()
}

func (d *DefaultMQTTConn) Disconnect(quiesce uint) {
	d.client.Disconnect(quiesce)
}

func (d *DefaultMQTTConn) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return d.client.Publish(topic, qos, retained, payload)
}

func (d *DefaultMQTTConn) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return d.client.Subscribe(topic, qos, callback)
}

func (d *DefaultMQTTConn) IsConnected() bool {
	return d.client.IsConnected()
}
