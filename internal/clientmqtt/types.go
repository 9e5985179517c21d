package clientmqtt

import "fmt"

type MQTTConf struct {
	ClientID string // ClientID - client name.
	Schema   string // Schema - connection scheme.
	Host     string // Host - MQTT server address.
	Port     string // Port - MQTT server port.
	User     string // User - login.
	Password string // Password - password.
	Qos      byte   // Qos - quality of service for subscriptions and status.
	Prefix   string // Prefix - topic root, e.g. "dmx".
}

// Topics builds the topic names under one prefix.
type Topics struct {
	Prefix string
}

// Commands is the subscription filter for every command topic.
func (t Topics) Commands() string { return t.Prefix + "/cmd/#" }

// Command returns the topic of one command, e.g. "dmx/cmd/blackout".
func (t Topics) Command(name string) string { return fmt.Sprintf("%s/cmd/%s", t.Prefix, name) }

// Status is the retained status topic.
func (t Topics) Status() string { return t.Prefix + "/status" }

// Kind selects what a Command does.
type Kind int

const (
	SetChannels Kind = iota + 1
	SetFixture
	Blackout
	ApplyScene
	CaptureScene
	StartChaser
	StopChaser
)

var kindNames = map[Kind]string{
	SetChannels:  "channels",
	SetFixture:   "fixture",
	Blackout:     "blackout",
	ApplyScene:   "scene/apply",
	CaptureScene: "scene/capture",
	StartChaser:  "chaser/start",
	StopChaser:   "chaser/stop",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type DMXCommand struct {
	Channel uint16 `json:"channel"` // Channel is the address a command writes (1-512).
	Value   uint8  `json:"value"`   // Value is the value a DMX channel can represent (0-255).
}

type Payload []DMXCommand

// FixtureValue sets one channel of a patched fixture by offset.
type FixtureValue struct {
	Offset int `json:"offset"`
	Value  int `json:"value"`
}

// Command is one decoded control message.
type Command struct {
	Kind     Kind
	Channels Payload        // SetChannels
	Fixture  string         // SetFixture
	Values   []FixtureValue // SetFixture
	Ref      string         // scene or chaser id or name; scene name for CaptureScene
}
