package schemagen_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tabula/core/platform"
	"github.com/stokaro/tabula/core/schemagen"
	"github.com/stokaro/tabula/examples/medical"
	"github.com/stokaro/tabula/orm"
)

// Ward and Nurse reference each other.
type Ward struct {
	ID         int
	HeadNurse  int
	Supervisor int
}

func (Ward) DeclareSchema(b *orm.Builder[Ward]) {
	b.Table("wards")
	orm.Column(b, "ID", func(w *Ward) *int { return &w.ID }).PrimaryKey()
	orm.Column(b, "HeadNurse", func(w *Ward) *int { return &w.HeadNurse }).
		Named("head_nurse_id").
		References(orm.EntityOf[Nurse]())
	orm.Column(b, "Supervisor", func(w *Ward) *int { return &w.Supervisor }).
		Named("supervisor_ward_id").
		References(orm.EntityOf[Ward]())
}

type Nurse struct {
	ID     int
	WardID int
}

func (Nurse) DeclareSchema(b *orm.Builder[Nurse]) {
	b.Table("nurses")
	orm.Column(b, "ID", func(n *Nurse) *int { return &n.ID }).PrimaryKey()
	orm.Column(b, "WardID", func(n *Nurse) *int { return &n.WardID }).
		Named("ward_id").
		References(orm.EntityOf[Ward]())
}

// Badge has a text key and references an entity without a primary key.
type Badge struct {
	Code  string
	Label string
}

func (Badge) DeclareSchema(b *orm.Builder[Badge]) {
	b.Table("badges")
	orm.Column(b, "Code", func(x *Badge) *string { return &x.Code }).PrimaryKey()
	orm.Column(b, "Label", func(x *Badge) *string { return &x.Label }).References(orm.EntityOf[Keyless]())
}

type Keyless struct {
	Note string
}

func (Keyless) DeclareSchema(b *orm.Builder[Keyless]) {
	orm.Column(b, "Note", func(k *Keyless) *string { return &k.Note })
}

type Broken struct{}

func tableNames(metas []*orm.Metadata) []string {
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.Table
	}
	return names
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestCreateTableSQL_Postgres(t *testing.T) {
	c := qt.New(t)

	reg := orm.NewRegistry()
	meta, err := reg.Metadata(orm.EntityOf[medical.Appointment]())
	c.Assert(err, qt.IsNil)

	sql, err := schemagen.CreateTableSQL(meta, reg, platform.Postgres)
	c.Assert(err, qt.IsNil)
	c.Assert(sql, qt.Equals, `CREATE TABLE IF NOT EXISTS appointments (
    id SERIAL PRIMARY KEY,
    patient_id INTEGER,
    doctor_id INTEGER,
    examination_type TEXT,
    scheduled_at TIMESTAMP,
    notes TEXT,
    FOREIGN KEY (patient_id) REFERENCES patients(id),
    FOREIGN KEY (doctor_id) REFERENCES doctors(id)
);`)
}

func TestCreateTableSQL_Dialects(t *testing.T) {
	tests := []struct {
		dialect  string
		expected []string
	}{
		{
			dialect:  platform.MySQL,
			expected: []string{"id INT AUTO_INCREMENT PRIMARY KEY", "dose_amount DECIMAL(18,4)", "end_date DATETIME"},
		},
		{
			dialect:  platform.SQLite,
			expected: []string{"id INTEGER PRIMARY KEY", "dose_amount NUMERIC", "end_date TIMESTAMP"},
		},
		{
			dialect:  platform.Postgres,
			expected: []string{"id SERIAL PRIMARY KEY", "dose_amount DECIMAL", "FOREIGN KEY (medication_id) REFERENCES medications(id)"},
		},
	}

	reg := orm.NewRegistry()
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			c := qt.New(t)

			meta, err := reg.Metadata(orm.EntityOf[medical.Prescription]())
			c.Assert(err, qt.IsNil)

			sql, err := schemagen.CreateTableSQL(meta, reg, tt.dialect)
			c.Assert(err, qt.IsNil)
			for _, fragment := range tt.expected {
				c.Assert(sql, qt.Contains, fragment)
			}
		})
	}
}

func TestCreateTableSQL_NonIntegerKeyAndKeylessTarget(t *testing.T) {
	c := qt.New(t)

	reg := orm.NewRegistry()
	meta, err := reg.Metadata(orm.EntityOf[Badge]())
	c.Assert(err, qt.IsNil)

	sql, err := schemagen.CreateTableSQL(meta, reg, platform.Postgres)
	c.Assert(err, qt.IsNil)
	c.Assert(sql, qt.Equals, "CREATE TABLE IF NOT EXISTS badges (\n    code TEXT PRIMARY KEY,\n    label TEXT\n);")
}

func TestDropTableSQL(t *testing.T) {
	c := qt.New(t)

	meta, err := orm.EntityOf[medical.Doctor]().Metadata(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(schemagen.DropTableSQL(meta.Table), qt.Equals, "DROP TABLE IF EXISTS doctors;")
}

func TestSortByDependencies_Medical(t *testing.T) {
	c := qt.New(t)

	sorted, err := schemagen.SortByDependencies(medical.Models(), orm.NewRegistry())
	c.Assert(err, qt.IsNil)

	names := tableNames(sorted)
	c.Assert(names, qt.HasLen, 7)
	c.Assert(names, qt.DeepEquals, []string{
		"patients", "doctors", "appointments", "medical_histories", "medications", "prescriptions", "users",
	})
	c.Assert(indexOf(names, "patients") < indexOf(names, "appointments"), qt.IsTrue)
	c.Assert(indexOf(names, "medications") < indexOf(names, "prescriptions"), qt.IsTrue)
}

func TestSortByDependencies_DiscoveryOrder(t *testing.T) {
	patient := orm.EntityOf[medical.Patient]()
	doctor := orm.EntityOf[medical.Doctor]()
	appointment := orm.EntityOf[medical.Appointment]()

	tests := []struct {
		name   string
		models []orm.Entity
	}{
		{name: "appointment, patient", models: []orm.Entity{appointment, patient}},
		{name: "patient, appointment", models: []orm.Entity{patient, appointment}},
		{name: "patient, doctor, appointment", models: []orm.Entity{patient, doctor, appointment}},
		{name: "patient, appointment, doctor", models: []orm.Entity{patient, appointment, doctor}},
		{name: "doctor, patient, appointment", models: []orm.Entity{doctor, patient, appointment}},
		{name: "doctor, appointment, patient", models: []orm.Entity{doctor, appointment, patient}},
		{name: "appointment, patient, doctor", models: []orm.Entity{appointment, patient, doctor}},
		{name: "appointment, doctor, patient", models: []orm.Entity{appointment, doctor, patient}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			sorted, err := schemagen.SortByDependencies(tt.models, orm.NewRegistry())
			c.Assert(err, qt.IsNil)

			names := tableNames(sorted)
			c.Assert(names, qt.HasLen, len(tt.models))
			c.Assert(indexOf(names, "patients") < indexOf(names, "appointments"), qt.IsTrue, qt.Commentf("%v", names))
			if indexOf(names, "doctors") >= 0 {
				c.Assert(indexOf(names, "doctors") < indexOf(names, "appointments"), qt.IsTrue, qt.Commentf("%v", names))
			}
		})
	}
}

func TestSortByDependencies_ReversedModels(t *testing.T) {
	c := qt.New(t)

	models := medical.Models()
	reversed := make([]orm.Entity, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		reversed = append(reversed, models[i])
	}

	sorted, err := schemagen.SortByDependencies(reversed, orm.NewRegistry())
	c.Assert(err, qt.IsNil)

	names := tableNames(sorted)
	c.Assert(names, qt.HasLen, len(models))
	for _, dep := range [][2]string{
		{"patients", "appointments"},
		{"doctors", "appointments"},
		{"patients", "medical_histories"},
		{"patients", "prescriptions"},
		{"medications", "prescriptions"},
	} {
		c.Assert(indexOf(names, dep[0]) < indexOf(names, dep[1]), qt.IsTrue, qt.Commentf("%s before %s in %v", dep[0], dep[1], names))
	}
}

func TestSortByDependencies_IgnoresTargetsOutsideSet(t *testing.T) {
	c := qt.New(t)

	sorted, err := schemagen.SortByDependencies([]orm.Entity{
		orm.EntityOf[medical.Prescription](),
		orm.EntityOf[medical.Medication](),
		orm.EntityOf[medical.Prescription](),
	}, orm.NewRegistry())
	c.Assert(err, qt.IsNil)
	c.Assert(tableNames(sorted), qt.DeepEquals, []string{"medications", "prescriptions"})
}

func TestSortByDependencies_Cycle(t *testing.T) {
	c := qt.New(t)

	sorted, err := schemagen.SortByDependencies([]orm.Entity{orm.EntityOf[Ward](), orm.EntityOf[Nurse]()}, orm.NewRegistry())
	c.Assert(err, qt.IsNil)
	c.Assert(tableNames(sorted), qt.DeepEquals, []string{"nurses", "wards"})
}

func TestSortByDependencies_ResolutionError(t *testing.T) {
	c := qt.New(t)

	_, err := schemagen.SortByDependencies([]orm.Entity{orm.EntityOf[Broken]()}, orm.NewRegistry())
	c.Assert(err, qt.ErrorIs, orm.ErrInvalidSchema)
	c.Assert(err, qt.ErrorMatches, "failed to resolve Broken: .*")
}

func TestFindCycles(t *testing.T) {
	c := qt.New(t)

	cycles, err := schemagen.FindCycles(medical.Models(), orm.NewRegistry())
	c.Assert(err, qt.IsNil)
	c.Assert(cycles, qt.HasLen, 0)

	// the self reference of Ward is not a cycle
	cycles, err = schemagen.FindCycles([]orm.Entity{orm.EntityOf[Ward](), orm.EntityOf[Nurse]()}, orm.NewRegistry())
	c.Assert(err, qt.IsNil)
	c.Assert(cycles, qt.DeepEquals, [][]string{{"Ward", "Nurse"}})
}

func TestGenerator_StatementsWarnOnCycle(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	gen := schemagen.NewGenerator(platform.Postgres).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	statements, err := gen.Statements([]orm.Entity{orm.EntityOf[Ward](), orm.EntityOf[Nurse]()})
	c.Assert(err, qt.IsNil)
	c.Assert(statements, qt.HasLen, 2)
	c.Assert(statements[0], qt.Contains, "CREATE TABLE IF NOT EXISTS nurses")
	c.Assert(statements[1], qt.Contains, "FOREIGN KEY (supervisor_ward_id) REFERENCES wards(id)")
	c.Assert(buf.String(), qt.Contains, "level=WARN")
	c.Assert(buf.String(), qt.Contains, `entities="Ward -> Nurse"`)
}

func TestGenerator_Apply(t *testing.T) {
	c := qt.New(t)

	db, mock, err := sqlmock.New()
	c.Assert(err, qt.IsNil)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS medications")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS patients")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS prescriptions")).WillReturnResult(sqlmock.NewResult(0, 0))

	var buf bytes.Buffer
	gen := schemagen.NewGenerator(platform.Postgres).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	err = gen.Apply(context.Background(), db, []orm.Entity{
		orm.EntityOf[medical.Medication](),
		orm.EntityOf[medical.Prescription](),
		orm.EntityOf[medical.Patient](),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(mock.ExpectationsWereMet(), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, `msg="Creating table" entity=Medication table=medications`)
}

func TestGenerator_ApplyStopsOnError(t *testing.T) {
	c := qt.New(t)

	db, mock, err := sqlmock.New()
	c.Assert(err, qt.IsNil)
	defer db.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS medications")).WillReturnError(boom)

	gen := schemagen.NewGenerator(platform.Postgres).WithLogger(slog.New(slog.DiscardHandler))
	err = gen.Apply(context.Background(), db, []orm.Entity{
		orm.EntityOf[medical.Medication](),
		orm.EntityOf[medical.Prescription](),
	})
	c.Assert(err, qt.ErrorIs, boom)
	c.Assert(err, qt.ErrorMatches, "failed to create table medications: permission denied")
	c.Assert(mock.ExpectationsWereMet(), qt.IsNil)
}

func TestGenerator_ApplyNoModels(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	gen := schemagen.NewGenerator(platform.Postgres).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	c.Assert(gen.Apply(context.Background(), nil, nil), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, "No models to create tables for")
}
