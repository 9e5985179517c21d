package control

import (
	"context"
	"errors"
	"time"

	"dmxcore/internal/chaser"
	"dmxcore/internal/clientmqtt"
	"dmxcore/internal/dmx"
	"dmxcore/internal/task"
)

// Status is the service report published to remote consumers.
type Status struct {
	Online         bool      `json:"online"`
	Output         string    `json:"output"`
	Device         string    `json:"device,omitempty"`
	Frames         uint64    `json:"frames"`
	Error          string    `json:"error,omitempty"`
	Fixtures       int       `json:"fixtures"`
	Scenes         int       `json:"scenes"`
	RunningChasers []string  `json:"running_chasers"`
	Time           time.Time `json:"time"`
}

// Status reports the output state and store sizes.
func (s *Service) Status() Status {
	st := s.Engine.State()
	out := Status{
		Online:         true,
		Output:         string(st.Status),
		Device:         st.Device,
		Frames:         st.Frames,
		Fixtures:       s.Patch.Len(),
		Scenes:         len(s.Scenes.List()),
		RunningChasers: []string{},
		Time:           time.Now().UTC().Truncate(time.Second),
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	for _, c := range s.Chasers.List() {
		if c.State == chaser.Running {
			out.RunningChasers = append(out.RunningChasers, c.Name)
		}
	}
	return out
}

// StatusPublisher sends a status report somewhere. *clientmqtt.ClientMQTT
// is one.
type StatusPublisher interface {
	PublishStatus(v any) error
}

// Run executes commands until ctx is done or cmds is closed. When pub is not
// nil a status report is published every interval and after each command.
func (s *Service) Run(ctx context.Context, cmds <-chan clientmqtt.Command, pub StatusPublisher, interval time.Duration) {
	var tick <-chan time.Time
	if pub != nil && interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
		s.publish(pub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.publish(pub)
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if err := s.Execute(cmd); err != nil {
				s.log.Warnf("command %s: %v", cmd.Kind, err)
			}
			if pub != nil {
				s.publish(pub)
			}
		}
	}
}

func (s *Service) publish(pub StatusPublisher) {
	if err := pub.PublishStatus(s.Status()); err != nil {
		s.log.Debugf("status not published: %v", err)
	}
}

// Execute runs one decoded remote command.
func (s *Service) Execute(cmd clientmqtt.Command) error {
	switch cmd.Kind {
	case clientmqtt.SetChannels:
		values := make([]dmx.ChannelValue, len(cmd.Channels))
		for i, c := range cmd.Channels {
			values[i] = dmx.ChannelValue{Channel: c.Channel, Value: c.Value}
		}
		return s.SetChannelValues(values)

	case clientmqtt.SetFixture:
		values := make([]FixtureValue, len(cmd.Values))
		for i, v := range cmd.Values {
			values[i] = FixtureValue{Offset: v.Offset, Value: v.Value}
		}
		return s.SetFixtureValues(cmd.Fixture, values)

	case clientmqtt.Blackout:
		s.Blackout()
		return nil

	case clientmqtt.ApplyScene:
		_, err := s.ApplyScene(cmd.Ref)
		return err

	case clientmqtt.CaptureScene:
		_, err := s.CaptureScene(cmd.Ref)
		return err

	case clientmqtt.StartChaser:
		_, err := s.StartChaser(cmd.Ref)
		return err

	case clientmqtt.StopChaser:
		_, err := s.StopChaser(cmd.Ref)
		if errors.Is(err, task.ErrJoinTimeout) {
			return nil
		}
		return err
	}
	return errors.New("unsupported command")
}
