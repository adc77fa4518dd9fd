package troll

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/grid"
	"github.com/ecotroll/troll/tree"
)

// Non-goal per spec §1: full input/output file parsing is an external
// collaborator's responsibility. This file implements only the minimal
// whitespace-table readers needed to exercise the core in tests (spec §6
// "all whitespace-separated text files with a header row") plus the
// snapshot round-trip spec §8's Round-trip law requires.

// readTable splits a whitespace-separated table into its header row and
// data rows, skipping blank lines (spec §6).
func readTable(r io.Reader) (header []string, rows [][]string, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if header == nil {
			header = fields
			continue
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("troll: reading table: %w", err)
	}
	if header == nil {
		return nil, nil, fmt.Errorf("troll: empty table, expected a header row")
	}
	return header, rows, nil
}

// colIndex returns the index of name in header, or -1 with a caller-level
// warning if absent (spec §7 "unknown parameter: log warning... continue").
func colIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func floatAt(row []string, idx int, def float64) float64 {
	if idx < 0 || idx >= len(row) {
		return def
	}
	v, err := strconv.ParseFloat(row[idx], 64)
	if err != nil {
		return def
	}
	return v
}

func intAt(row []string, idx int, def int) int {
	return int(floatAt(row, idx, float64(def)))
}

func stringAt(row []string, idx int, def string) string {
	if idx < 0 || idx >= len(row) {
		return def
	}
	return row[idx]
}

// ReadSpeciesTable parses the species file (spec §6 "Species file"):
// s_name, s_LMA, s_Nmass, s_Pmass, s_wsg, s_dbhmax, s_hmax, s_ah,
// s_seedmass, s_regionalfreq, s_tlp, s_leafarea, one row per species.
// Species are returned 1-indexed (index 0 left zero-valued) to match
// tree.Tree.SpLab's convention.
func ReadSpeciesTable(r io.Reader) ([]*tree.Species, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	col := func(name string) int { return colIndex(header, name) }
	iName, iLMA, iN, iP := col("s_name"), col("s_LMA"), col("s_Nmass"), col("s_Pmass")
	iWSG, iDBHmax, iHmax, iAh := col("s_wsg"), col("s_dbhmax"), col("s_hmax"), col("s_ah")
	iSeedMass, iFreq, iTLP, iLeafArea := col("s_seedmass"), col("s_regionalfreq"), col("s_tlp"), col("s_leafarea")
	iDs := col("s_ds")

	out := make([]*tree.Species, len(rows)+1)
	for i, row := range rows {
		sp := &tree.Species{
			Name:              stringAt(row, iName, fmt.Sprintf("sp%d", i+1)),
			LMA:               floatAt(row, iLMA, 100),
			Nmass:             floatAt(row, iN, 0.02),
			Pmass:             floatAt(row, iP, 0.001),
			WSG:               floatAt(row, iWSG, 0.6),
			DBHmax:            floatAt(row, iDBHmax, 0.5),
			Hmax:              floatAt(row, iHmax, 30),
			Ah:                floatAt(row, iAh, 0.2),
			Ds:                floatAt(row, iDs, 20),
			SeedMass:          floatAt(row, iSeedMass, 1) * 0.4, // wet volume -> dry mass, spec §6
			RegionalFrequency: floatAt(row, iFreq, 1),
			TLP:               floatAt(row, iTLP, -1.5),
			LeafArea:          floatAt(row, iLeafArea, 20),
		}
		sp.Finalize()
		out[i+1] = sp
	}
	return out, nil
}

// generalParamField maps a general-parameters-file header name to a
// setter on *config.Params, driving ReadGeneralParams without a giant
// switch statement per field.
type generalParamField struct {
	name string
	set  func(p *config.Params, v float64)
}

var generalParamFields = []generalParamField{
	{"rows", func(p *config.Params, v float64) { p.Rows = int(v) }},
	{"cols", func(p *config.Params, v float64) { p.Cols = int(v) }},
	{"HEIGHT", func(p *config.Params, v float64) { p.Height = int(v) }},
	{"nbiter", func(p *config.Params, v float64) { p.NbIter = int(v) }},
	{"NV", func(p *config.Params, v float64) { p.NV = v }},
	{"NH", func(p *config.Params, v float64) { p.NH = v }},
	{"length_dcell", func(p *config.Params, v float64) { p.LengthDCell = v }},
	{"klight", func(p *config.Params, v float64) { p.Klight = v }},
	{"absorptance_leaves", func(p *config.Params, v float64) { p.AbsorptanceLeaves = v }},
	{"theta", func(p *config.Params, v float64) { p.Theta = v }},
	{"phi", func(p *config.Params, v float64) { p.Phi = v }},
	{"g0", func(p *config.Params, v float64) { p.G0 = v }},
	{"g1", func(p *config.Params, v float64) { p.G1 = v }},
	{"DBH0", func(p *config.Params, v float64) { p.DBH0 = v }},
	{"H0", func(p *config.Params, v float64) { p.H0 = v }},
	{"CR_a", func(p *config.Params, v float64) { p.CRa = v }},
	{"CR_b", func(p *config.Params, v float64) { p.CRb = v }},
	{"CD_a", func(p *config.Params, v float64) { p.CDa = v }},
	{"CD_b", func(p *config.Params, v float64) { p.CDb = v }},
	{"CR_min", func(p *config.Params, v float64) { p.CRMin = v }},
	{"shape_crown", func(p *config.Params, v float64) { p.ShapeCrown = v }},
	{"crown_gap_fraction", func(p *config.Params, v float64) { p.CrownGapFraction = v }},
	{"dens", func(p *config.Params, v float64) { p.Dens = v }},
	{"fallocwood", func(p *config.Params, v float64) { p.FallocWood = v }},
	{"falloccanopy", func(p *config.Params, v float64) { p.FallocCanopy = v }},
	{"Cseedrain", func(p *config.Params, v float64) { p.CSeedRain = v }},
	{"nbs0", func(p *config.Params, v float64) { p.Nbs0 = v }},
	{"leafdem_resolution", func(p *config.Params, v float64) { p.LeafdemResolution = int(v) }},
	{"p_tfsecondary", func(p *config.Params, v float64) { p.PTFSecondary = v }},
	{"hurt_decay", func(p *config.Params, v float64) { p.HurtDecay = v }},
	{"m", func(p *config.Params, v float64) { p.M = v }},
	{"m1", func(p *config.Params, v float64) { p.M1 = v }},
	{"Cair", func(p *config.Params, v float64) { p.Cair = v }},
	{"PRESS", func(p *config.Params, v float64) { p.Press = v }},
	{"iterperyear", func(p *config.Params, v float64) { p.IterPerYear = int(v) }},
	{"sigma_height", func(p *config.Params, v float64) { p.SigmaHeight = v }},
	{"sigma_CR", func(p *config.Params, v float64) { p.SigmaCR = v }},
	{"sigma_CD", func(p *config.Params, v float64) { p.SigmaCD = v }},
	{"sigma_dbhmax", func(p *config.Params, v float64) { p.SigmaDbhmax = v }},
	{"sigma_N", func(p *config.Params, v float64) { p.SigmaN = v }},
	{"sigma_P", func(p *config.Params, v float64) { p.SigmaP = v }},
	{"sigma_LMA", func(p *config.Params, v float64) { p.SigmaLMA = v }},
	{"sigma_wsg", func(p *config.Params, v float64) { p.SigmaWSG = v }},
}

// ReadGeneralParams parses the general parameters file (spec §6). It
// applies no range clamping; callers doing strict validation should call
// config.Clamp (spec §7's 1% tolerance band) themselves on the fields that
// matter to them.
func ReadGeneralParams(r io.Reader) (*config.Params, []string, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("troll: general parameters file has no data row")
	}
	row := rows[0]
	p := &config.Params{SBORD: 20}

	var unknown []string
	matched := make(map[string]bool, len(generalParamFields))
	for _, f := range generalParamFields {
		idx := colIndex(header, f.name)
		if idx < 0 {
			continue
		}
		matched[f.name] = true
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			unknown = append(unknown, fmt.Sprintf("%s: non-numeric value %q, using default", f.name, row[idx]))
			continue
		}
		f.set(p, v)
	}
	for _, h := range header {
		known := false
		for _, f := range generalParamFields {
			if strings.EqualFold(f.name, h) {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, fmt.Sprintf("unrecognized parameter %q in general parameters file, ignored", h))
		}
	}
	return p, unknown, nil
}

// ReadClimateTable parses the climate file (spec §6 "Climate file"):
// T_day, T_night, rain, WS, shortwave_irradiance, VPD, one row per
// day/iteration.
func ReadClimateTable(r io.Reader) ([]Climate, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	iTDay, iTNight := colIndex(header, "T_day"), colIndex(header, "T_night")
	iRain, iWS := colIndex(header, "rain"), colIndex(header, "WS")
	iSW, iVPD := colIndex(header, "shortwave_irradiance"), colIndex(header, "VPD")

	out := make([]Climate, len(rows))
	for i, row := range rows {
		out[i] = Climate{
			TDay: floatAt(row, iTDay, 28), TNight: floatAt(row, iTNight, 22),
			Rain: floatAt(row, iRain, 0), WS: floatAt(row, iWS, 1),
			ShortwaveIrradiance: floatAt(row, iSW, 400), VPD: floatAt(row, iVPD, 1),
		}
	}
	return out, nil
}

// ReadDaytimeProfile parses the daytime variation file (spec §6 "Daytime
// variation file"): normalised light/VPD/T/wind across sub-steps.
func ReadDaytimeProfile(r io.Reader, nbHoursCovered float64) (*DaytimeProfile, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	iLight, iVPD, iT, iWind := colIndex(header, "light"), colIndex(header, "VPD"), colIndex(header, "T"), colIndex(header, "wind")
	d := &DaytimeProfile{NbHoursCovered: nbHoursCovered}
	for _, row := range rows {
		d.Light = append(d.Light, floatAt(row, iLight, 1))
		d.VPD = append(d.VPD, floatAt(row, iVPD, 1))
		d.T = append(d.T, floatAt(row, iT, 1))
		d.Wind = append(d.Wind, floatAt(row, iWind, 1))
	}
	return d, nil
}

// snapshotHeader lists the inventory/snapshot columns this package
// round-trips (spec §6: "Snapshot columns are those listed above under
// inventory plus derived AGB and species name; this is designed to be
// re-ingestible as an inventory").
var snapshotHeader = []string{
	"col", "row", "s_name", "dbh", "height", "CR", "CD", "LAI",
	"sapwood_area", "carbon_storage", "hurt", "agb",
}

// WriteSnapshot writes every live tree's full state as a tab-separated
// table re-ingestible by ReadInventory (spec §6 "Outputs... initial/final
// snapshots").
func WriteSnapshot(w io.Writer, g *grid.Grid, trees []*tree.Tree, species []*tree.Species) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(snapshotHeader, "\t") + "\n"); err != nil {
		return err
	}
	for _, t := range trees {
		if !t.IsAlive() {
			continue
		}
		row, col := g.RowCol(t.Site)
		name := ""
		if t.SpLab >= 0 && t.SpLab < len(species) && species[t.SpLab] != nil {
			name = species[t.SpLab].Name
		}
		agb := tree.AboveGroundBiomass(t)
		fields := []string{
			strconv.Itoa(col), strconv.Itoa(row), name,
			strconv.FormatFloat(t.DBH, 'g', -1, 64),
			strconv.FormatFloat(t.Height, 'g', -1, 64),
			strconv.FormatFloat(t.CR, 'g', -1, 64),
			strconv.FormatFloat(t.CD, 'g', -1, 64),
			strconv.FormatFloat(t.LAI, 'g', -1, 64),
			strconv.FormatFloat(t.SapwoodArea, 'g', -1, 64),
			strconv.FormatFloat(t.CarbonStorage, 'g', -1, 64),
			strconv.FormatFloat(t.Hurt, 'g', -1, 64),
			strconv.FormatFloat(agb, 'g', -1, 64),
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// InventoryRow is one parsed row of an inventory/snapshot file (spec §6
// "Inventory file"); dbh is mandatory, every other field is optional and
// falls back to the documented default when absent or unparsable.
type InventoryRow struct {
	Col, Row       int
	HasCoordinates bool
	SpeciesName    string
	DBH            float64
	Height         float64
	CR, CD         float64
}

// ReadInventory parses an inventory (or previously-written snapshot) file
// (spec §6 "Inventory file"). Rows without a dbh column are rejected; rows
// without coordinates are flagged HasCoordinates=false so the caller can
// place them on a random free site (spec §6: "missing coordinates ->
// random free site").
func ReadInventory(r io.Reader) ([]InventoryRow, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	iDBH := colIndex(header, "dbh")
	if iDBH < 0 {
		return nil, fmt.Errorf("troll: inventory file has no dbh column")
	}
	iCol, iRow := colIndex(header, "col"), colIndex(header, "row")
	iName := colIndex(header, "s_name")
	iHeight, iCR, iCD := colIndex(header, "height"), colIndex(header, "CR"), colIndex(header, "CD")

	out := make([]InventoryRow, 0, len(rows))
	for _, row := range rows {
		dbh, err := strconv.ParseFloat(row[iDBH], 64)
		if err != nil {
			continue
		}
		rec := InventoryRow{
			DBH: dbh, SpeciesName: stringAt(row, iName, ""),
			Height: floatAt(row, iHeight, 0), CR: floatAt(row, iCR, 0), CD: floatAt(row, iCD, 0),
		}
		if iCol >= 0 && iRow >= 0 {
			rec.Col = intAt(row, iCol, 0)
			rec.Row = intAt(row, iRow, 0)
			rec.HasCoordinates = true
		}
		out = append(out, rec)
	}
	return out, nil
}
