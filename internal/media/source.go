package media

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoDevice is returned when no capture device can be opened.
var ErrNoDevice = errors.New("no media device")

// Modes accepted by NewSource.
const (
	ModeSynthetic = "synthetic"
	ModeNone      = "none"
)

// Source acquires the local capture stream.
type Source interface {
	Acquire(ctx context.Context) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Stream, error)

func (f SourceFunc) Acquire(ctx context.Context) (Stream, error) { return f(ctx) }

// NewSource returns the source for a configured media mode.
func NewSource(mode string) (Source, error) {
	switch mode {
	case ModeSynthetic, "":
		return SourceFunc(func(ctx context.Context) (Stream, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return NewSyntheticStream(), nil
		}), nil
	case ModeNone:
		return SourceFunc(func(context.Context) (Stream, error) {
			return nil, ErrNoDevice
		}), nil
	default:
		return nil, fmt.Errorf("unknown media mode %q", mode)
	}
}
