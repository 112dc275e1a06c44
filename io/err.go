package io

import (
	"errors"

	"github.com/ezrec/isk/translate"
)

var f = translate.From

var (
	// Channel errors
	ErrChannelFull = errors.New(f("channel full"))

	// Image errors
	ErrImageTruncated = errors.New(f("image truncated"))
)
