package clientmqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTopic = errors.New("unknown command topic")
	ErrBadPayload   = errors.New("malformed command payload")
)

// ParseCommand decodes a message received on a topic under t.Commands().
//
// Payloads:
//
//	channels       [{"channel":1,"value":255}, ...]
//	fixture/<id>   [{"offset":0,"value":255}, ...]
//	blackout       ignored
//	scene/apply    scene id or name, plain text or a JSON string
//	scene/capture  scene name
//	chaser/start   chaser id or name
//	chaser/stop    chaser id or name
func (t Topics) ParseCommand(topic string, payload []byte) (Command, error) {
	root := t.Prefix + "/cmd/"
	if !strings.HasPrefix(topic, root) {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	name := strings.TrimPrefix(topic, root)

	switch {
	case name == "channels":
		var data Payload
		if err := json.Unmarshal(payload, &data); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return Command{Kind: SetChannels, Channels: data}, nil

	case strings.HasPrefix(name, "fixture/"):
		id := strings.TrimPrefix(name, "fixture/")
		if id == "" || strings.Contains(id, "/") {
			return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
		}
		var values []FixtureValue
		if err := json.Unmarshal(payload, &values); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return Command{Kind: SetFixture, Fixture: id, Values: values}, nil

	case name == "blackout":
		return Command{Kind: Blackout}, nil
	}

	var kind Kind
	switch name {
	case "scene/apply":
		kind = ApplyScene
	case "scene/capture":
		kind = CaptureScene
	case "chaser/start":
		kind = StartChaser
	case "chaser/stop":
		kind = StopChaser
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	ref, err := textPayload(payload)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Ref: ref}, nil
}

// textPayload accepts either raw text or a JSON string.
func textPayload(payload []byte) (string, error) {
	p := bytes.TrimSpace(payload)
	if len(p) > 0 && p[0] == '"' {
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		p = []byte(strings.TrimSpace(s))
	}
	if len(p) == 0 {
		return "", fmt.Errorf("%w: empty reference", ErrBadPayload)
	}
	return string(p), nil
}
