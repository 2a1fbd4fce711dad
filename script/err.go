package script

import (
	"errors"

	"github.com/ezrec/qcpu/translate"
)

var f = translate.From

var (
	ErrHandlerMissing = errors.New(f("script does not define on_interrupt"))
)
