package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kbs-slackbot/internal/domain"
)

// ErrUpdateDropped is returned by an emit func for an intermediate update it
// could not show. Consumption goes on and the snapshot counts as not shown.
var ErrUpdateDropped = errors.New("usecase: update dropped")

// Update is an answer snapshot that should be shown to the user.
type Update struct {
	Snapshot domain.AnswerSnapshot
	Final    bool
}

// ConsumeAnswer drains stream, passing every snapshot the throttle lets
// through to emit. Once the stream ends the latest snapshot is emitted with
// Final set, unless it is already the one on screen. It returns the final
// snapshot and the number of updates shown.
//
// A stream that ends without any snapshot, or with empty text, is malformed.
// Any emit error other than ErrUpdateDropped stops consumption and is
// returned as is.
func ConsumeAnswer(ctx context.Context, stream domain.AnswerStream, throttle *Throttle, emit func(context.Context, Update) error) (domain.AnswerSnapshot, int, error) {
	var (
		latest   domain.AnswerSnapshot
		received int
		emitted  int
		shown    bool
	)
	for stream.Next() {
		latest = stream.Snapshot()
		received++
		shown = false
		if !throttle.Due(latest) {
			continue
		}
		err := emit(ctx, Update{Snapshot: latest})
		switch {
		case err == nil:
			emitted++
			shown = true
		case errors.Is(err, ErrUpdateDropped):
		default:
			return latest, emitted, err
		}
	}
	if err := stream.Err(); err != nil {
		return latest, emitted, err
	}
	if received == 0 {
		return latest, emitted, fmt.Errorf("usecase: answer stream ended without events: %w", domain.ErrMalformedAnswer)
	}
	if strings.TrimSpace(latest.Text) == "" {
		return latest, emitted, fmt.Errorf("usecase: answer ended with empty text: %w", domain.ErrMalformedAnswer)
	}
	if shown {
		return latest, emitted, nil
	}
	if err := emit(ctx, Update{Snapshot: latest, Final: true}); err != nil {
		return latest, emitted, err
	}
	return latest, emitted + 1, nil
}
