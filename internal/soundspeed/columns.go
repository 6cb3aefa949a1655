package soundspeed

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// DefaultSalinity is assumed when the input carries no salinity column.
const DefaultSalinity = 35.0

// Options controls Process.
type Options struct {
	// CompSalinity, when set, adds columns computed with this constant
	// salinity and the difference to the measured sound speed.
	CompSalinity *float64
	// BinSize averages levels into depth bins of this many metres.
	// Zero reports every level.
	BinSize float64
	Titles  bool
	Label   string
}

// Row is one level with its computed sound speeds. Speeds are NaN when
// the inputs were out of range.
type Row struct {
	Lat, Lon         float64
	Year, Month, Day int
	Time             float64
	Depth            float64
	Temp, Sal        float64
	SSP              float64
	CompSal          float64
	CompSSP          float64
	Diff             float64
}

func (r Row) sameStation(o Row) bool {
	return r.Lat == o.Lat && r.Lon == o.Lon && r.Year == o.Year && r.Month == o.Month &&
		r.Day == o.Day && int(r.Time*100) == int(o.Time*100)
}

// Compute fills the sound speed fields of r.
func Compute(r Row, compSal *float64) Row {
	pres := DepthToPressure(r.Depth)
	var err error
	if r.SSP, err = ChenMilleroLi(pres, r.Temp, r.Sal); err != nil {
		r.SSP = math.NaN()
	}
	r.CompSal, r.CompSSP, r.Diff = math.NaN(), math.NaN(), math.NaN()
	if compSal != nil {
		r.CompSal = *compSal
		if r.CompSSP, err = ChenMilleroLi(pres, r.Temp, r.CompSal); err != nil {
			r.CompSSP = math.NaN()
		}
		r.Diff = r.SSP - r.CompSSP
	}
	return r
}

// Process reads the column output of the filter from r and writes sound
// speed columns to w. Station heading lines are copied through; other
// comment lines are dropped.
func Process(r io.Reader, w io.Writer, opts Options) error {
	p := &processor{w: bufio.NewWriter(w), opts: opts, tempCol: 7, salCol: 8}
	if opts.Titles {
		p.writeTitles()
	}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		switch {
		case strings.HasPrefix(text, "%Station"):
			p.flush()
			fmt.Fprintln(p.w, text)
		case strings.HasPrefix(text, "%Columns"):
			p.tempCol, p.salCol = columnIndexes(text)
			if p.salCol < 0 {
				fmt.Fprintln(p.w, "%(salinity data not present in input profile - assuming 35ppt.)")
			}
		case strings.HasPrefix(text, "%"), strings.TrimSpace(text) == "":
		default:
			row, err := parseRow(text, p.tempCol, p.salCol)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			p.add(Compute(row, opts.CompSalinity))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	p.flush()
	return p.w.Flush()
}

// columnIndexes finds the temperature and salinity columns in a
// "%Columns:" heading. Either is -1 when absent.
func columnIndexes(heading string) (temp, sal int) {
	temp, sal = -1, -1
	labels := strings.Split(strings.TrimPrefix(heading, "%Columns:"), ",")
	for i, l := range labels {
		switch strings.TrimSpace(l) {
		case "Temp":
			temp = i
		case "Sal":
			sal = i
		}
	}
	return temp, sal
}

// parseRow reads one level line. Error flags in parentheses are ignored.
func parseRow(text string, tempCol, salCol int) (Row, error) {
	var fields []string
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "(") {
			continue
		}
		fields = append(fields, f)
	}
	want := tempCol + 1
	if salCol >= want {
		want = salCol + 1
	}
	if want < 7 {
		want = 7
	}
	if len(fields) < want {
		return Row{}, fmt.Errorf("want %d columns, got %d", want, len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Row{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}
	row := Row{
		Lat: vals[0], Lon: vals[1],
		Year: int(vals[2]), Month: int(vals[3]), Day: int(vals[4]),
		Time: vals[5], Depth: vals[6], Temp: math.NaN(), Sal: DefaultSalinity,
	}
	if tempCol >= 0 {
		row.Temp = vals[tempCol]
	}
	if salCol >= 0 {
		row.Sal = vals[salCol]
	}
	return row, nil
}

type processor struct {
	w          *bufio.Writer
	opts    Options
	tempCol int
	salCol  int

	bin    []Row
	binTop float64
}

func (p *processor) comparing() bool { return p.opts.CompSalinity != nil }
func (p *processor) binning() bool   { return p.opts.BinSize > 0 }

func (p *processor) add(r Row) {
	if !p.binning() {
		p.writeRow(r, r.Depth, 1, math.NaN())
		return
	}
	if len(p.bin) > 0 && (!r.sameStation(p.bin[0]) || r.Depth >= p.binTop+p.opts.BinSize) {
		p.flush()
	}
	if len(p.bin) == 0 {
		p.binTop = math.Max(0, math.Floor(r.Depth/p.opts.BinSize)*p.opts.BinSize)
	}
	p.bin = append(p.bin, r)
}

// flush writes the pending bin as one averaged row.
func (p *processor) flush() {
	if len(p.bin) == 0 {
		return
	}
	col := func(get func(Row) float64) []float64 {
		out := make([]float64, len(p.bin))
		for i, r := range p.bin {
			out[i] = get(r)
		}
		return out
	}
	avg := p.bin[0]
	avg.Temp = stat.Mean(col(func(r Row) float64 { return r.Temp }), nil)
	avg.Sal = stat.Mean(col(func(r Row) float64 { return r.Sal }), nil)
	avg.SSP = stat.Mean(col(func(r Row) float64 { return r.SSP }), nil)
	spread := math.NaN()
	if p.comparing() {
		avg.CompSal = stat.Mean(col(func(r Row) float64 { return r.CompSal }), nil)
		avg.CompSSP = stat.Mean(col(func(r Row) float64 { return r.CompSSP }), nil)
		diffs := col(func(r Row) float64 { return r.Diff })
		avg.Diff = stat.Mean(diffs, nil)
		spread = stat.PopStdDev(diffs, nil)
	}
	p.writeRow(avg, p.binTop, len(p.bin), spread)
	p.bin = p.bin[:0]
}

func (p *processor) writeRow(r Row, depth float64, n int, spread float64) {
	fmt.Fprintf(p.w, "%7.4f %7.4f %4d %2d %2d %5.2f %8.3f %8.3f %8.3f %9.3f",
		r.Lat, r.Lon, r.Year, r.Month, r.Day, r.Time, depth, r.Temp, r.Sal, r.SSP)
	if p.comparing() {
		fmt.Fprintf(p.w, " %8.3f %9.3f %7.3f", r.CompSal, r.CompSSP, r.Diff)
		if p.binning() {
			fmt.Fprintf(p.w, " %7.3f %2d", spread, n)
		}
	}
	p.w.WriteByte('\n')
}

func (p *processor) writeTitles() {
	if p.opts.Label != "" {
		fmt.Fprintf(p.w, "%% %s\n", p.opts.Label)
	}
	fmt.Fprintf(p.w, "%%%7s %8s %4s %2s %2s %5s %8s %8s %8s %9s",
		"Lat  ", "Lon  ", "Year", "Mo", "Dy", " Time", "Depth ", "Temp  ", "Saln ", "Calcd_SSP")
	if p.comparing() {
		fmt.Fprintf(p.w, " %8s %9s %7s", "CompSaln", "CompSSP", "DiffSSP")
		if p.binning() {
			fmt.Fprintf(p.w, " %7s %2s", "StdvDif", "N")
		}
	}
	p.w.WriteByte('\n')
	fmt.Fprintf(p.w, "%%%7s %8s %4s %2s %2s %5s %8s %8s %8s %9s",
		"deg  ", "deg  ", "yyyy", "mm", "dd", "hrs", "meters ", "deg C ", "ppt ", "m/s   ")
	if p.comparing() {
		fmt.Fprintf(p.w, " %8s %9s %7s", "ppt ", "m/s ", "m/s ")
		if p.binning() {
			fmt.Fprintf(p.w, " %7s %2s", "m/s ", "#")
		}
	}
	p.w.WriteByte('\n')
	p.w.WriteString("%" + strings.Repeat("-", 72))
	if p.comparing() {
		p.w.WriteString(strings.Repeat("-", 29))
		if p.binning() {
			p.w.WriteString(strings.Repeat("-", 10))
		}
	}
	p.w.WriteByte('\n')
}
