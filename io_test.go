package troll

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ecotroll/troll/grid"
	"github.com/ecotroll/troll/tree"
)

func TestReadSpeciesTableParsesRowsOneIndexed(t *testing.T) {
	in := strings.NewReader("s_name\ts_LMA\ts_Nmass\ts_wsg\ts_dbhmax\ts_hmax\n" +
		"Fakus\t120\t0.022\t0.65\t0.6\t28\n")
	species, err := ReadSpeciesTable(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(species) != 2 || species[0] != nil {
		t.Fatalf("len=%d, species[0]=%v, want a 2-element 1-indexed slice with a nil sentinel at 0", len(species), species[0])
	}
	sp := species[1]
	if sp.Name != "Fakus" || sp.LMA != 120 || sp.WSG != 0.65 {
		t.Errorf("parsed species = %+v, want Name=Fakus LMA=120 WSG=0.65", sp)
	}
	if sp.DBHmature != 0.3 {
		t.Errorf("DBHmature = %g, want Finalize to have derived 0.5*DBHmax = 0.3", sp.DBHmature)
	}
}

func TestReadGeneralParamsAppliesKnownFieldsAndWarnsOnUnknown(t *testing.T) {
	in := strings.NewReader("rows\tcols\tklight\tbogus_field\n40\t40\t0.5\t1\n")
	p, warnings, err := ReadGeneralParams(in)
	if err != nil {
		t.Fatal(err)
	}
	if p.Rows != 40 || p.Cols != 40 || p.Klight != 0.5 {
		t.Errorf("Params = %+v, want Rows=40 Cols=40 Klight=0.5", p)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "bogus_field") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a warning mentioning the unrecognized column bogus_field", warnings)
	}
}

func TestReadGeneralParamsWarnsOnNonNumericValue(t *testing.T) {
	in := strings.NewReader("rows\tklight\n40\tNaNish\n")
	_, warnings, err := ReadGeneralParams(in)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "klight") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a warning about the non-numeric klight value", warnings)
	}
}

func TestReadClimateTableParsesOneRowPerLine(t *testing.T) {
	in := strings.NewReader("T_day\tT_night\train\tWS\tshortwave_irradiance\tVPD\n" +
		"30\t23\t5\t2\t500\t1.2\n28\t22\t0\t1\t450\t1.5\n")
	clim, err := ReadClimateTable(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(clim) != 2 {
		t.Fatalf("len(clim) = %d, want 2", len(clim))
	}
	if clim[0].TDay != 30 || clim[1].VPD != 1.5 {
		t.Errorf("clim = %+v, want first TDay=30 and second VPD=1.5", clim)
	}
}

func TestReadDaytimeProfileParsesSubSteps(t *testing.T) {
	in := strings.NewReader("light\tVPD\tT\twind\n0.1\t0.5\t0.9\t0.8\n1.5\t1.2\t1.1\t1.2\n")
	d, err := ReadDaytimeProfile(in, 12)
	if err != nil {
		t.Fatal(err)
	}
	if d.NbSteps() != 2 || d.NbHoursCovered != 12 {
		t.Fatalf("NbSteps()=%d NbHoursCovered=%g, want 2 and 12", d.NbSteps(), d.NbHoursCovered)
	}
	if d.Light[0] != 0.1 || d.Wind[1] != 1.2 {
		t.Errorf("d = %+v, want Light[0]=0.1 Wind[1]=1.2", d)
	}
}

// TestSnapshotRoundTrip exercises spec §8's Round-trip testable property:
// a written snapshot, read back as an inventory, reproduces every live
// tree's dbh (and, via HasCoordinates, its site).
func TestSnapshotRoundTrip(t *testing.T) {
	g := grid.New(5, 5, 0)
	species := []*tree.Species{nil, {Name: "Fakus"}}
	trees := make([]*tree.Tree, g.Sites)
	for i := range trees {
		trees[i] = &tree.Tree{Site: i}
	}
	site1, _ := g.Site(1, 1)
	site2, _ := g.Site(3, 2)
	trees[site1] = &tree.Tree{Site: site1, Age: 3, SpLab: 1, DBH: 0.25, Height: 12, CR: 3, CD: 1.5}
	trees[site2] = &tree.Tree{Site: site2, Age: 7, SpLab: 1, DBH: 0.4, Height: 20, CR: 4, CD: 2}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, g, trees, species); err != nil {
		t.Fatal(err)
	}

	rows, err := ReadInventory(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("ReadInventory returned %d rows, want 2 (only the live trees)", len(rows))
	}
	for _, r := range rows {
		if !r.HasCoordinates {
			t.Error("a round-tripped snapshot row should carry coordinates")
		}
		if r.DBH != 0.25 && r.DBH != 0.4 {
			t.Errorf("round-tripped dbh = %g, want 0.25 or 0.4", r.DBH)
		}
	}
}

func TestReadInventoryRejectsMissingDBHColumn(t *testing.T) {
	in := strings.NewReader("col\trow\n1\t1\n")
	if _, err := ReadInventory(in); err == nil {
		t.Error("ReadInventory should reject a table with no dbh column")
	}
}

func TestReadInventoryFlagsMissingCoordinates(t *testing.T) {
	in := strings.NewReader("dbh\n0.3\n")
	rows, err := ReadInventory(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].HasCoordinates {
		t.Errorf("rows = %+v, want one row with HasCoordinates=false", rows)
	}
}
