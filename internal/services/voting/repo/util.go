package repo

import "time"

// text[] columns are NOT NULL
func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
