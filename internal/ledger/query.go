package ledger

import "time"

// Query filters units. Zero values mean "no filter"; Limit defaults to 10.
type Query struct {
	Type  ContextType
	Owner string
	After string // RFC3339 timestamp; only units strictly newer match
	Limit int
}

// QueryUnits linearly scans registered units in store insertion order and
// returns the first Limit matches. Results are not sorted by timestamp;
// insertion order is the only ordering guarantee.
func (l *Ledger) QueryUnits(q Query) []*ContextUnit {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	var after time.Time
	if q.After != "" {
		t, err := time.Parse(time.RFC3339Nano, q.After)
		if err != nil {
			return nil
		}
		after = t
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*ContextUnit
	for _, id := range l.order {
		u := l.units[id]

		if q.Type != "" && u.Type != q.Type {
			continue
		}
		if q.Owner != "" && u.Owner != q.Owner {
			continue
		}
		if !after.IsZero() {
			ts, err := time.Parse(time.RFC3339Nano, u.Timestamp)
			if err != nil || !ts.After(after) {
				continue
			}
		}

		results = append(results, u)
		if len(results) >= q.Limit {
			break
		}
	}
	return results
}
