package events

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/arbor/pkg/conversation"
)

// ErrUnknownKind marks an event kind this client does not recognize. Callers
// log it and keep reading; an unknown kind must never halt the stream.
var ErrUnknownKind = errors.New("unknown event kind")

// wireLine is the raw shape of one frame payload: a small integer
// discriminant `k`, a `r` result field whose shape depends on `k`, and an
// `i` span id where applicable.
type wireLine struct {
	K Kind            `json:"k"`
	R json.RawMessage `json:"r"`
	I conversation.SpanID `json:"i"`
}

// DecodeEvent parses one frame payload into a typed event.
func DecodeEvent(frame string) (Event, error) {
	var line wireLine
	if err := json.Unmarshal([]byte(frame), &line); err != nil {
		return nil, errors.Wrap(err, "malformed event frame")
	}

	switch line.K {
	case KindStopID:
		var id string
		if err := decodeResult(line, &id); err != nil {
			return nil, err
		}
		return StopIDEvent{ID: id}, nil

	case KindSegment:
		var text string
		if err := decodeResult(line, &text); err != nil {
			return nil, err
		}
		return SegmentEvent{SpanID: line.I, Text: text}, nil

	case KindReasoningSegment:
		var text string
		if err := decodeResult(line, &text); err != nil {
			return nil, err
		}
		return ReasoningSegmentEvent{SpanID: line.I, Text: text}, nil

	case KindError:
		var text string
		if err := decodeResult(line, &text); err != nil {
			return nil, err
		}
		return ErrorEvent{SpanID: line.I, Text: text}, nil

	case KindUserMessage:
		var msg conversation.Message
		if err := decodeResult(line, &msg); err != nil {
			return nil, err
		}
		return UserMessageEvent{Message: &msg}, nil

	case KindResponseMessage:
		var msg conversation.Message
		if err := decodeResult(line, &msg); err != nil {
			return nil, err
		}
		return ResponseMessageEvent{SpanID: line.I, Message: &msg}, nil

	case KindStartResponse:
		var elapsed int64
		if err := decodeResult(line, &elapsed); err != nil {
			return nil, err
		}
		return StartResponseEvent{SpanID: line.I, ElapsedMs: elapsed}, nil

	case KindImageGenerated:
		var file conversation.FileDef
		if err := decodeResult(line, &file); err != nil {
			return nil, err
		}
		return ImageGeneratedEvent{SpanID: line.I, File: file}, nil

	case KindUpdateTitle:
		var text string
		if err := decodeResult(line, &text); err != nil {
			return nil, err
		}
		return UpdateTitleEvent{Text: text}, nil

	case KindTitleSegment:
		var text string
		if err := decodeResult(line, &text); err != nil {
			return nil, err
		}
		return TitleSegmentEvent{Text: text}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownKind, "k=%d", int(line.K))
	}
}

func decodeResult(line wireLine, into any) error {
	if len(line.R) == 0 {
		return errors.Errorf("%s event has no result field", line.K)
	}
	if err := json.Unmarshal(line.R, into); err != nil {
		return errors.Wrapf(err, "%s event result", line.K)
	}
	return nil
}
