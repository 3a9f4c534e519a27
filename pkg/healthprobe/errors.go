package healthprobe

import "errors"

// ErrNoBaseline is returned when retries is reached before any valid WAL
// position was ever observed: publishing +SDOWN would give peers no
// baseline to compute lag against, so the probe exits fatally instead.
var ErrNoBaseline = errors.New("healthprobe: sdown reached before any WAL position observed")
