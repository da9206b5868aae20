package features

import "time"

// addCalendar adds day-of-week (Monday = 0), month, quarter and 0/1 flags for
// month and quarter boundaries. Dates are read in their own location.
func addCalendar(t *Table) {
	n := t.Len()
	dow := make([]float64, n)
	month := make([]float64, n)
	quarter := make([]float64, n)
	monthStart := make([]float64, n)
	monthEnd := make([]float64, n)
	quarterStart := make([]float64, n)
	quarterEnd := make([]float64, n)

	for i, d := range t.Dates() {
		m := int(d.Month())
		q := (m-1)/3 + 1
		first := d.Day() == 1
		last := d.Day() == daysIn(d.Year(), d.Month(), d.Location())

		dow[i] = float64((int(d.Weekday()) + 6) % 7)
		month[i] = float64(m)
		quarter[i] = float64(q)
		monthStart[i] = flag(first)
		monthEnd[i] = flag(last)
		quarterStart[i] = flag(first && (m-1)%3 == 0)
		quarterEnd[i] = flag(last && m%3 == 0)
	}

	t.set("day_of_week", dow)
	t.set("month", month)
	t.set("quarter", quarter)
	t.set("is_month_start", monthStart)
	t.set("is_month_end", monthEnd)
	t.set("is_quarter_start", quarterStart)
	t.set("is_quarter_end", quarterEnd)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
