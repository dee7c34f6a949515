package export

import "strconv"

// PeriodHeader and DayHeaders label the columns of a week grid.
var (
	PeriodHeader = "節次"
	DayHeaders   = []string{"一", "二", "三", "四", "五"}
)

// WeekGrid is a five-day timetable with one row per period. Cells are keyed by "day_period".
type WeekGrid struct {
	Periods int
	Cells   map[string]string
}

// Dataset lays the grid out as a table: a period column followed by one column per school day.
func (g WeekGrid) Dataset() Dataset {
	headers := append([]string{PeriodHeader}, DayHeaders...)
	rows := make([]map[string]string, 0, g.Periods)
	for period := 1; period <= g.Periods; period++ {
		row := map[string]string{PeriodHeader: strconv.Itoa(period)}
		for i, header := range DayHeaders {
			row[header] = g.Cells[strconv.Itoa(i+1)+"_"+strconv.Itoa(period)]
		}
		rows = append(rows, row)
	}
	return Dataset{Headers: headers, Rows: rows}
}
