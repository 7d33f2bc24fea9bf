/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package extract

import (
	"context"
	"sync"
	"time"
)

// throttle spaces requests to an upstream API. A nil throttle never waits.
type throttle struct {
	mu   sync.Mutex
	rate time.Duration
	next time.Time
}

func newThrottle(rate time.Duration) *throttle {
	if rate <= 0 {
		return nil
	}
	return &throttle{rate: rate}
}

func (t *throttle) wait(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	now := time.Now()
	at := t.next
	if at.Before(now) {
		at = now
	}
	t.next = at.Add(t.rate)
	t.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
