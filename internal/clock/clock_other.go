//go:build !linux

package clock

import "time"

var processStart = time.Now()

func monotonicSecs() int64 {
	return int64(time.Since(processStart) / time.Second)
}

// watchTimeChanges polls the real/monotonic offset once a second.
func watchTimeChanges(stop <-chan struct{}, changed func()) error {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		last := time.Now().Unix() - monotonicSecs()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				offset := time.Now().Unix() - monotonicSecs()
				// Tolerate rounding between the two readings.
				if offset-last > 1 || last-offset > 1 {
					last = offset
					changed()
				}
			}
		}
	}()
	return nil
}
