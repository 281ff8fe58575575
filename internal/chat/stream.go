package chat

import "io"

type sliceStream struct {
	events []Event
}

// StreamOf returns a Stream that yields events in order, then io.EOF.
func StreamOf(events ...Event) Stream {
	return &sliceStream{events: events}
}

func (s *sliceStream) Recv() (Event, error) {
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.events = nil
	return nil
}
