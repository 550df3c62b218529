//go:build tinygo || !cgo

package glview

import (
	"context"
	"errors"
)

func run(ctx context.Context, cfg Config, start func(s *Session) error) error {
	return errors.New("require cgo for preview window")
}
