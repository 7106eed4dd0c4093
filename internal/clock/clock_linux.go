//go:build linux

package clock

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

var processStart = time.Now()

// monotonicSecs reads CLOCK_BOOTTIME so that time spent suspended does not
// register as a change of the real/monotonic offset.
func monotonicSecs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return int64(time.Since(processStart) / time.Second)
	}
	return int64(ts.Sec)
}

// watchTimeChanges arms a timerfd with TFD_TIMER_CANCEL_ON_SET. Reads fail
// with ECANCELED whenever CLOCK_REALTIME is set discontinuously.
func watchTimeChanges(stop <-chan struct{}, changed func()) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_REALTIME, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("timerfd create: %w", err)
	}
	if err := armCancelOnSet(fd); err != nil {
		_ = unix.Close(fd)
		return err
	}

	go func() {
		defer func() { _ = unix.Close(fd) }()

		buf := make([]byte, 8)
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, err := unix.Poll(fds, 1000)
			if err != nil {
				if errors.Is(err, unix.EINTR) {
					continue
				}
				return
			}
			if n == 0 {
				continue
			}

			_, err = unix.Read(fd, buf)
			switch {
			case errors.Is(err, unix.ECANCELED):
				if err := armCancelOnSet(fd); err != nil {
					return
				}
				changed()
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			case err != nil:
				return
			default:
				// The far-future expiry was reached. Re-arm.
				if err := armCancelOnSet(fd); err != nil {
					return
				}
			}
		}
	}()

	return nil
}

func armCancelOnSet(fd int) error {
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(time.Now().AddDate(1, 0, 0).UnixNano()),
	}
	if err := unix.TimerfdSettime(fd, unix.TFD_TIMER_ABSTIME|unix.TFD_TIMER_CANCEL_ON_SET, &spec, nil); err != nil {
		return fmt.Errorf("timerfd settime: %w", err)
	}
	return nil
}
