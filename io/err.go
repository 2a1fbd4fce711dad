package io

import (
	"errors"

	"github.com/ezrec/qcpu/translate"
)

var f = translate.From

var (
	// Device errors
	ErrChannelFull    = errors.New(f("channel full"))
	ErrChannelEmpty   = errors.New(f("channel empty"))
	ErrReadOnly       = errors.New(f("device is read only"))
	ErrAddressInvalid = errors.New(f("device address invalid"))
)
