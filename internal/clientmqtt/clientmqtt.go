package clientmqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dmxcore/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 500 // milliseconds
	offlinePayload    = `{"online":false}`
)

// ClientMQTT receives control commands and publishes status.
type ClientMQTT struct {
	ctx       context.Context
	log       *logger.Log
	cfgClient MQTTConf
	topics    Topics
	client    mqtt.Client
	opts      *mqtt.ClientOptions
	cmdCh     chan<- Command
}

// MQTTClient is a convenience interface to use within this application.
type MQTTClient interface {
	Start(ctx context.Context, cmdCh chan<- Command) error
	Stop() error
	PublishStatus(v any) error
}

// NewClient returns an unconnected client.
func NewClient(log logger.Logger, cfgClient MQTTConf) *ClientMQTT {
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	return &ClientMQTT{
		log:       log.With(logger.Fields{"module": "mqtt"}),
		cfgClient: cfgClient,
		topics:    Topics{Prefix: cfgClient.Prefix},
	}
}

// Topics returns the topic layout used by the client.
func (c *ClientMQTT) Topics() Topics { return c.topics }

// Start connects to the broker. Decoded commands are sent to cmdCh until ctx
// is done.
func (c *ClientMQTT) Start(ctx context.Context, cmdCh chan<- Command) error {
	if c.log.GetLevel() == "debug" {
		mqtt.ERROR = pahoLogger{c.log.Errorf}
		mqtt.CRITICAL = pahoLogger{c.log.Errorf}
		mqtt.WARN = pahoLogger{c.log.Warnf}
	}

	c.ctx = ctx
	c.cmdCh = cmdCh

	c.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetClientID(c.cfgClient.ClientID).
		SetOrderMatters(true).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetWill(c.topics.Status(), offlinePayload, c.cfgClient.Qos, true)

	c.client = mqtt.NewClient(c.opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-ctx.Done():
		return errors.New("context canceled")
	}

	c.log.Infof("Status: %v", c.client.IsConnected())
	return nil
}

// Stop publishes the offline status and disconnects.
func (c *ClientMQTT) Stop() error {
	if c.client == nil || !c.client.IsConnected() {
		return nil
	}
	token := c.client.Publish(c.topics.Status(), c.cfgClient.Qos, true, offlinePayload)
	token.WaitTimeout(publishTimeout)
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

// PublishStatus sends v as JSON to the retained status topic.
func (c *ClientMQTT) PublishStatus(v any) error {
	if c.client == nil || !c.client.IsConnected() {
		return errors.New("mqtt: not connected")
	}
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: status: %w", err)
	}
	token := c.client.Publish(c.topics.Status(), c.cfgClient.Qos, true, msg)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: status publish timed out after %v", publishTimeout)
	}
	return token.Error()
}

// connectHandler runs on every (re)connect; a clean session drops the
// subscription, so it is made again here.
func (c *ClientMQTT) connectHandler(client mqtt.Client) {
	c.log.Info("client connected to server")
	c.sub(client, c.topics.Commands())
}

func (c *ClientMQTT) connectLostHandler(_ mqtt.Client, err error) {
	c.log.Errorf("server connect lost: %v", err)
}

func (c *ClientMQTT) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.log.Debugf("received message: %s from topic: %s", msg.Payload(), msg.Topic())

	cmd, err := c.topics.ParseCommand(msg.Topic(), msg.Payload())
	if err != nil {
		c.log.Errorf("message dropped: %v", err)
		return
	}

	select {
	case c.cmdCh <- cmd:
	case <-c.ctx.Done():
	}
}

func (c *ClientMQTT) sub(client mqtt.Client, topic string) {
	token := client.Subscribe(topic, c.cfgClient.Qos, c.messageHandler)
	go func() {
		select {
		case <-c.ctx.Done():
			return
		case <-token.Done():
			if token.Error() != nil {
				c.log.Errorf("topic %s subscription error: %v", topic, token.Error())
				return
			}
		}
		c.log.Debugf("topic %s subscribed", topic)
	}()
}

// pahoLogger routes the library's internal logs into ours.
type pahoLogger struct {
	printf func(format string, args ...interface{})
}

func (l pahoLogger) Println(v ...interface{}) { l.printf("%s", fmt.Sprint(v...)) }

func (l pahoLogger) Printf(format string, v ...interface{}) { l.printf(format, v...) }
